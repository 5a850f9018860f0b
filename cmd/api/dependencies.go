package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/sessions"

	accounthandler "github.com/FACorreiaa/collections-portal/internal/domain/account/handler"
	accountrepo "github.com/FACorreiaa/collections-portal/internal/domain/account/repository"
	accountservice "github.com/FACorreiaa/collections-portal/internal/domain/account/service"
	authhandler "github.com/FACorreiaa/collections-portal/internal/domain/auth/handler"
	authrepo "github.com/FACorreiaa/collections-portal/internal/domain/auth/repository"
	authservice "github.com/FACorreiaa/collections-portal/internal/domain/auth/service"
	"github.com/FACorreiaa/collections-portal/internal/domain/compliance"
	compliancehandler "github.com/FACorreiaa/collections-portal/internal/domain/compliance/handler"
	"github.com/FACorreiaa/collections-portal/internal/domain/import/analyzer"
	importhandler "github.com/FACorreiaa/collections-portal/internal/domain/import/handler"
	"github.com/FACorreiaa/collections-portal/internal/domain/import/mapping"
	importrepo "github.com/FACorreiaa/collections-portal/internal/domain/import/repository"
	importservice "github.com/FACorreiaa/collections-portal/internal/domain/import/service"
	paymenthandler "github.com/FACorreiaa/collections-portal/internal/domain/payment/handler"
	paymentrepo "github.com/FACorreiaa/collections-portal/internal/domain/payment/repository"
	paymentservice "github.com/FACorreiaa/collections-portal/internal/domain/payment/service"
	portalhandler "github.com/FACorreiaa/collections-portal/internal/domain/portal/handler"
	portalservice "github.com/FACorreiaa/collections-portal/internal/domain/portal/service"

	"github.com/FACorreiaa/collections-portal/pkg/config"
	"github.com/FACorreiaa/collections-portal/pkg/crypto"
	"github.com/FACorreiaa/collections-portal/pkg/db"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config *config.Config
	DB     *db.DB
	Logger *slog.Logger

	// Repositories
	AuthRepo    authrepo.AuthRepository
	AccountRepo accountrepo.AccountRepository
	ImportRepo  importrepo.ImportRepository
	PaymentRepo paymentrepo.PaymentRepository

	// Services
	TokenManager   *authservice.TokenManager
	AuthService    *authservice.AuthService
	AccountService *accountservice.AccountService
	ImportService  *importservice.ImportService
	PaymentService *paymentservice.PaymentService
	PortalService  *portalservice.PortalService
	CallWindow     *compliance.Calculator

	// Handlers
	AuthHandler       *authhandler.AuthHandler
	AccountHandler    *accounthandler.AccountHandler
	ImportHandler     *importhandler.ImportHandler
	PaymentHandler    *paymenthandler.PaymentHandler
	PortalHandler     *portalhandler.PortalHandler
	CallWindowHandler *compliancehandler.CallWindowHandler
	SessionStore      sessions.Store
}

// InitDependencies initializes all application dependencies
func InitDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to init database: %w", err)
	}

	deps.initRepositories()

	if err := deps.initServices(); err != nil {
		deps.Cleanup()
		return nil, fmt.Errorf("failed to init services: %w", err)
	}

	deps.initHandlers()

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initDatabase initializes the database connection and runs migrations
func (d *Dependencies) initDatabase() error {
	database, err := db.New(db.Config{
		DSN:             d.Config.Database.DSN(),
		MaxConns:        25,
		MinConns:        5,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 10 * time.Minute,
	}, d.Logger)
	if err != nil {
		return err
	}
	d.DB = database

	if err := d.DB.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.Logger.Info("database connected and migrations completed successfully")
	return nil
}

func (d *Dependencies) initRepositories() {
	d.AuthRepo = authrepo.NewPostgresAuthRepository(d.DB.Pool)
	d.AccountRepo = accountrepo.NewPostgresAccountRepository(d.DB.Pool)
	d.ImportRepo = importrepo.NewPostgresImportRepository(d.DB.Pool)
	d.PaymentRepo = paymentrepo.NewPostgresPaymentRepository(d.DB.Pool)

	d.Logger.Info("repositories initialized")
}

func (d *Dependencies) initServices() error {
	d.TokenManager = authservice.NewTokenManager(d.Config.Auth.JWTSecret, d.Config.Auth.AccessTokenTTL, d.Config.Observability.ServiceName)
	d.AuthService = authservice.NewAuthService(d.AuthRepo, d.TokenManager, d.Logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := d.AuthService.Bootstrap(ctx, d.Config.Auth.BootstrapEmail, d.Config.Auth.BootstrapPassword); err != nil {
		return fmt.Errorf("failed to bootstrap admin: %w", err)
	}

	suggester, err := d.newAnalyzer(ctx)
	if err != nil {
		return err
	}
	d.ImportService = importservice.NewImportService(d.ImportRepo, suggester, mapping.NewApplier(d.Logger), d.Logger)
	d.AccountService = accountservice.NewAccountService(d.AccountRepo, d.Logger)

	sealer, err := crypto.NewAESGCM(d.Config.Payments.EncryptionKey)
	if err != nil {
		return fmt.Errorf("invalid payments encryption key: %w", err)
	}
	d.PaymentService = paymentservice.NewPaymentService(d.PaymentRepo, sealer, d.Logger)
	d.PortalService = portalservice.NewPortalService(d.AccountRepo, d.PaymentService, d.Logger)

	d.CallWindow, err = compliance.NewCalculator(d.Logger)
	if err != nil {
		return fmt.Errorf("failed to load time zones: %w", err)
	}

	d.Logger.Info("services initialized")
	return nil
}

// newAnalyzer wires Gemini when a key is configured. Without one the
// analyzer reports itself disabled and manual mapping still works.
func (d *Dependencies) newAnalyzer(ctx context.Context) (*analyzer.Analyzer, error) {
	ai := d.Config.AI
	if ai.APIKey == "" {
		d.Logger.Warn("GEMINI_API_KEY not set; AI field suggestions disabled")
		return analyzer.New(nil, ai.Timeout, ai.SampleMaxLength, d.Logger), nil
	}

	gen, err := analyzer.NewGeminiGenerator(ctx, ai.APIKey, ai.Model)
	if errors.Is(err, analyzer.ErrMissingAPIKey) {
		return analyzer.New(nil, ai.Timeout, ai.SampleMaxLength, d.Logger), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to init gemini client: %w", err)
	}
	d.Logger.Info("AI field suggestions enabled", slog.String("model", ai.Model))
	return analyzer.New(gen, ai.Timeout, ai.SampleMaxLength, d.Logger), nil
}

func (d *Dependencies) initHandlers() {
	d.SessionStore = portalhandler.NewSessionStore(d.Config.Auth.SessionSecret, d.Config.Auth.SecureCookies)

	d.AuthHandler = authhandler.NewAuthHandler(d.AuthService, d.Logger)
	d.AccountHandler = accounthandler.NewAccountHandler(d.AccountService, d.Logger)
	d.ImportHandler = importhandler.NewImportHandler(d.ImportService, d.Config.Server.MaxUploadBytes, d.Logger)
	d.PaymentHandler = paymenthandler.NewPaymentHandler(d.PaymentService, d.Logger)
	d.PortalHandler = portalhandler.NewPortalHandler(d.PortalService, d.SessionStore, d.Logger)
	d.CallWindowHandler = compliancehandler.NewCallWindowHandler(d.CallWindow, d.Logger)

	d.Logger.Info("handlers initialized")
}

// Cleanup closes all resources
func (d *Dependencies) Cleanup() {
	if d.DB != nil {
		d.DB.Close()
		d.Logger.Info("database connection closed")
	}
}
