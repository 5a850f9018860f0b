// Package matcher suggests canonical fields for CSV headers using keyword heuristics.
package matcher

import (
	"regexp"
	"strings"

	"github.com/FACorreiaa/collections-portal/internal/domain/import/fields"
	"github.com/FACorreiaa/collections-portal/internal/domain/import/normalizer"
)

// Threshold is the minimum confidence (exclusive) for a suggestion to stand.
const Threshold = 0.5

// PhoneConfidence is returned when a phone-like header carries a phone-like sample.
const PhoneConfidence = 0.9

var (
	leadingQualifier = regexp.MustCompile(`^(primary|secondary|alt|alternate|other)\s+`)
	trailingIndex    = regexp.MustCompile(`\s+(1|2|3|#1|#2|#3)$`)
	ordinalPrefix    = regexp.MustCompile(`^(\d)(st|nd|rd|th)`)
	nonAlnum         = regexp.MustCompile(`[^a-z0-9]`)
	phoneHeader      = regexp.MustCompile(`phone|tel|cell|mobile|contact`)
)

// Match is a single header suggestion.
type Match struct {
	Field      fields.Field `json:"field"`
	Confidence float64      `json:"confidence"`
}

// Suggestion pairs a source header with its match.
type Suggestion struct {
	Header string `json:"header"`
	Match
}

type candidate struct {
	field    fields.Field
	keywords []string
}

// candidates is ordered; ties resolve to the earlier entry.
var candidates = []candidate{
	{fields.AccountNumber, []string{"accountnumber", "accountno", "accountnum", "accountid", "account", "acctnumber", "acctno", "acctnum", "acct", "accno", "accnum", "acc", "loannumber", "loanid"}},
	{fields.OriginalAccountNumber, []string{"originalaccountnumber", "originalaccount", "origaccountnumber", "origaccount", "originalacct", "creditoraccountnumber"}},
	{fields.FirstName, []string{"firstname", "fname", "first", "givenname", "forename"}},
	{fields.MiddleName, []string{"middlename", "mname", "middle", "middleinitial", "mi"}},
	{fields.LastName, []string{"lastname", "lname", "last", "surname", "familyname"}},
	{fields.DebtorName, []string{"debtorname", "fullname", "name", "customername", "borrowername", "debtor", "customer", "borrower", "consumer"}},
	{fields.SSN, []string{"ssn", "socialsecuritynumber", "socialsecurity", "social", "ssnumber", "taxid", "tin"}},
	{fields.DateOfBirth, []string{"dateofbirth", "dob", "birthdate", "birthday", "birth"}},
	{fields.PhoneNumber, []string{"phonenumber", "phone", "telephone", "tel", "mobile", "cell", "cellphone", "homephone", "workphone", "contact", "bestcontact"}},
	{fields.Email, []string{"email", "emailaddress", "mail"}},
	{fields.Address, []string{"address", "addr", "street", "streetaddress", "address1", "addressline1", "mailingaddress", "location"}},
	{fields.City, []string{"city", "town"}},
	{fields.State, []string{"state", "st", "province"}},
	{fields.ZipCode, []string{"zipcode", "zip", "postalcode", "postcode", "postal"}},
	{fields.CurrentBalance, []string{"currentbalance", "balance", "balancedue", "bal", "amount", "amountdue", "totaldue", "debt", "owed", "principal"}},
	{fields.OriginalCreditor, []string{"originalcreditor", "creditor", "creditorname", "origcreditor", "lender"}},
	{fields.OpenDate, []string{"opendate", "dateopened", "openeddate", "opened", "accountopendate"}},
	{fields.ChargeOffDate, []string{"chargeoffdate", "chargeoff", "chargedoff", "codate"}},
	{fields.CreditScore, []string{"creditscore", "score", "fico", "ficoscore"}},
	{fields.ImportantNotes, []string{"importantnotes", "notes", "note", "comments", "comment", "remarks", "description", "memo"}},
}

// NormalizeHeader lowercases the header, drops qualifiers such as "primary" or
// "2nd" and trailing enumerators, then strips everything but letters and digits.
func NormalizeHeader(header string) string {
	h := strings.ToLower(strings.TrimSpace(header))
	h = leadingQualifier.ReplaceAllString(h, "")
	h = trailingIndex.ReplaceAllString(h, "")
	h = ordinalPrefix.ReplaceAllString(h, "")
	return nonAlnum.ReplaceAllString(h, "")
}

// Find returns the best field for header, or nil when nothing scores above
// Threshold. Fields in used are not offered again unless they allow fan-in.
// The result depends only on the arguments.
func Find(header, sample string, used map[fields.Field]bool) *Match {
	lowered := strings.ToLower(strings.TrimSpace(header))

	if phoneHeader.MatchString(lowered) && len(normalizer.DigitsOnly(sample)) >= 10 {
		return &Match{Field: fields.PhoneNumber, Confidence: PhoneConfidence}
	}

	key := NormalizeHeader(header)
	if key == "" {
		return nil
	}

	var best *Match
	for _, c := range candidates {
		if used[c.field] && !c.field.AllowsFanIn() {
			continue
		}
		// A full-name column competes with its parts.
		if c.field == fields.DebtorName && (used[fields.FirstName] || used[fields.LastName]) {
			continue
		}

		score := scoreKeywords(key, c.keywords)
		if score == 0 {
			continue
		}
		if sample != "" && !fields.Validate(c.field, sample) {
			score /= 2
		}
		if best == nil || score > best.Confidence {
			best = &Match{Field: c.field, Confidence: score}
		}
	}

	if best == nil || best.Confidence <= Threshold {
		return nil
	}
	return best
}

// SuggestAll walks headers in order, feeding each accepted field back into
// the used set so later columns cannot claim an exclusive field twice.
func SuggestAll(headers []string, sample map[string]string) []Suggestion {
	used := make(map[fields.Field]bool)
	out := make([]Suggestion, 0, len(headers))

	for _, h := range headers {
		m := Find(h, sample[h], used)
		if m == nil {
			continue
		}
		used[m.Field] = true
		out = append(out, Suggestion{Header: h, Match: *m})
	}
	return out
}

// scoreKeywords keeps the best containment score across keywords and adds a
// small bonus for each further keyword that also matches.
func scoreKeywords(key string, keywords []string) float64 {
	var best float64
	hits := 0

	for _, kw := range keywords {
		s := containment(key, kw)
		if s == 0 {
			continue
		}
		hits++
		if s > best {
			best = s
		}
	}

	if hits > 1 {
		best += 0.05 * float64(hits-1)
	}
	if best > 1 {
		best = 1
	}
	return best
}

func containment(key, kw string) float64 {
	switch {
	case key == kw:
		return 1
	case len(kw) >= 3 && strings.Contains(key, kw):
		return 0.5 + 0.5*float64(len(kw))/float64(len(key))
	case len(key) >= 3 && strings.Contains(kw, key):
		return 0.3 + 0.5*float64(len(key))/float64(len(kw))
	default:
		return 0
	}
}
