package compliance

import "strings"

// DefaultZone applies to area codes missing from the table.
const DefaultZone = "America/New_York"

// areaCodesByZone is deliberately partial; unknown codes use DefaultZone.
var areaCodesByZone = map[string]string{
	"America/New_York": `201 202 203 207 212 215 216 234 239 240 267 301 302 305 315 321 330 347 351
		352 386 401 404 407 410 419 440 443 484 516 561 585 607 610 646 678 704 716 717 727 732 754
		772 786 813 828 845 850 856 862 904 908 914 917 919 929 954`,
	"America/Chicago": `205 214 217 224 225 228 251 254 262 281 309 312 314 316 318 319 331 334 337
		361 402 405 409 414 417 430 432 469 479 501 504 507 512 515 563 573 580 601 608 612 615 618
		630 636 651 662 682 708 713 715 731 763 769 773 815 816 817 830 832 847 870 901 903 913 918
		920 936 940 952 956 972 979`,
	"America/Denver": `303 307 385 406 435 480 505 520 575 602 623 720 928 970`,
	"America/Los_Angeles": `206 209 213 253 310 323 408 415 425 442 503 509 510 530 559 562 619 626
		650 657 661 669 702 707 714 725 747 760 775 805 818 831 858 909 916 925 949 951`,
	"America/Anchorage": `907`,
	"Pacific/Honolulu":  `808`,
}

func areaCodeTable() map[string]string {
	out := make(map[string]string, 200)
	for zone, codes := range areaCodesByZone {
		for _, code := range strings.Fields(codes) {
			out[code] = zone
		}
	}
	return out
}
