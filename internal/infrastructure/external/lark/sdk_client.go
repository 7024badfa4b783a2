package lark

import (
	"context"
	"fmt"
	"time"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	"go.uber.org/zap"
)

// Config holds the open platform credentials used for notifications.
type Config struct {
	AppID     string
	AppSecret string

	// BaseURL overrides the open platform domain, e.g. lark.LarkBaseUrl for the international tenant
	BaseURL string

	// RequestTimeout bounds a single API call; zero leaves the SDK default
	RequestTimeout time.Duration
}

// SDKClient owns the Lark API client. The SDK logs through zap.
type SDKClient struct {
	client *lark.Client
	appID  string
}

// NewSDKClient builds a client with tenant token caching enabled.
func NewSDKClient(cfg Config, logger *zap.Logger) *SDKClient {
	opts := []lark.ClientOptionFunc{
		lark.WithEnableTokenCache(true),
		lark.WithLogLevel(larkcore.LogLevelInfo),
		lark.WithLogger(zapSDKLogger{logger.Named("lark-sdk").Sugar()}),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, lark.WithOpenBaseUrl(cfg.BaseURL))
	}
	if cfg.RequestTimeout > 0 {
		opts = append(opts, lark.WithReqTimeout(cfg.RequestTimeout))
	}

	return &SDKClient{
		client: lark.NewClient(cfg.AppID, cfg.AppSecret, opts...),
		appID:  cfg.AppID,
	}
}

// Client exposes the raw SDK client.
func (c *SDKClient) Client() *lark.Client { return c.client }

// AppID is the application the client authenticates as.
func (c *SDKClient) AppID() string { return c.appID }

// zapSDKLogger implements larkcore.Logger.
type zapSDKLogger struct {
	sugar *zap.SugaredLogger
}

var _ larkcore.Logger = zapSDKLogger{}

func (l zapSDKLogger) Debug(_ context.Context, args ...interface{}) { l.sugar.Debug(fmt.Sprint(args...)) }
func (l zapSDKLogger) Info(_ context.Context, args ...interface{})  { l.sugar.Info(fmt.Sprint(args...)) }
func (l zapSDKLogger) Warn(_ context.Context, args ...interface{})  { l.sugar.Warn(fmt.Sprint(args...)) }
func (l zapSDKLogger) Error(_ context.Context, args ...interface{}) { l.sugar.Error(fmt.Sprint(args...)) }
