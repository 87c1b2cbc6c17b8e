package wbsync

import (
	"os"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/stocks_sync/models"
	"github.com/go-playground/validator/v10"
)

const (
	defaultReportBaseURL = "https://seller-analytics-api.wildberries.ru"
	defaultFeedBaseURL   = "https://statistics-api.wildberries.ru"

	// WB returns every current position when asked for changes since this date.
	fullSyncEpoch = "2019-06-20T00:00:00"
)

// GroupBy mirrors the six aggregation dimensions of the remains report.
// A flag set to false asks the remote service to collapse that dimension.
type GroupBy struct {
	Brand      bool
	Subject    bool
	VendorCode bool
	NmId       bool
	Barcode    bool
	Size       bool
}

// Config is built once at process start and passed into every component.
// Components never read env themselves.
type Config struct {
	APIKey        string `validate:"required"`
	ReportBaseURL string `validate:"required,url"`
	FeedBaseURL   string `validate:"required,url"`

	Mode    string `validate:"oneof=report feed"`
	Locale  string `validate:"oneof=ru en zh"`
	GroupBy GroupBy

	BatchSize      int           `validate:"gt=0"`
	MaxRetries     int           `validate:"gt=0"`
	RequestTimeout time.Duration `validate:"gt=0"`
	PollInterval   time.Duration `validate:"gt=0"`
	PollTimeout    time.Duration `validate:"gt=0"`

	LookbackMinutes int  `validate:"gt=0"`
	FullSync        bool

	StocksTable   string `validate:"required"`
	EmitTotalsRow bool

	LockEnabled bool
	SyncTopic   string
}

var validate = validator.New()

// LoadConfig reads the environment once and returns an immutable Config.
// config package init has already run godotenv.Load.
func LoadConfig() (Config, error) {
	cfg := Config{
		APIKey:        strings.TrimSpace(os.Getenv("WB_API_KEY")),
		ReportBaseURL: strings.TrimRight(envStr("WB_REPORT_BASE_URL", defaultReportBaseURL), "/"),
		FeedBaseURL:   strings.TrimRight(envStr("WB_FEED_BASE_URL", defaultFeedBaseURL), "/"),

		Mode:   strings.ToLower(envStr("SYNC_MODE", models.SyncModeReport)),
		Locale: strings.ToLower(envStr("REPORT_LOCALE", "ru")),
		GroupBy: GroupBy{
			Brand:      envBool("GROUP_BY_BRAND", false),
			Subject:    envBool("GROUP_BY_SUBJECT", false),
			VendorCode: envBool("GROUP_BY_VENDOR_CODE", false),
			NmId:       envBool("GROUP_BY_NM_ID", true),
			Barcode:    envBool("GROUP_BY_BARCODE", true),
			Size:       envBool("GROUP_BY_SIZE", true),
		},

		BatchSize:      envInt("BATCH_SIZE", 1000),
		MaxRetries:     envInt("MAX_RETRIES", 3),
		RequestTimeout: time.Duration(envInt("REQUEST_TIMEOUT_SECONDS", 120)) * time.Second,
		PollInterval:   time.Duration(envInt("POLL_INTERVAL_SECONDS", 3)) * time.Second,
		PollTimeout:    time.Duration(envInt("POLL_TIMEOUT_SECONDS", 180)) * time.Second,

		LookbackMinutes: envInt("LOOKBACK_MINUTES", 31),
		FullSync:        envBool("FULL_SYNC", false),

		StocksTable:   envStr("STOCKS_TABLE", models.DefaultStocksTable),
		EmitTotalsRow: envBool("EMIT_TOTALS_ROW", false),

		LockEnabled: envBool("SYNC_LOCK_ENABLED", false),
		SyncTopic:   strings.TrimSpace(os.Getenv("STOCKS_SYNC_TOPIC")),
	}

	if err := validate.Struct(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func envStr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "true", "1", "yes", "y", "on":
		return true
	case "false", "0", "no", "n", "off":
		return false
	default:
		return def
	}
}
