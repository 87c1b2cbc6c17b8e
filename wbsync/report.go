package wbsync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
)

const (
	reportCreatePath   = "/api/v1/warehouse_remains"
	reportStatusPath   = "/api/v1/warehouse_remains/tasks/%s/status"
	reportDownloadPath = "/api/v1/warehouse_remains/tasks/%s/download"
)

// encodingStrategy is a pure mapping from report parameters to one request
// shape. WB has changed the accepted encoding of this endpoint more than once,
// so task creation walks the strategies in order until one yields a task id.
type encodingStrategy struct {
	name  string
	build func(cfg Config) (method string, query url.Values, body []byte)
}

func groupByFields(g GroupBy) []struct {
	key string
	on  bool
} {
	return []struct {
		key string
		on  bool
	}{
		{"groupByBrand", g.Brand},
		{"groupBySubject", g.Subject},
		{"groupBySa", g.VendorCode},
		{"groupByNm", g.NmId},
		{"groupByBarcode", g.Barcode},
		{"groupBySize", g.Size},
	}
}

func reportStrategies() []encodingStrategy {
	return []encodingStrategy{
		{
			name: "query-params",
			build: func(cfg Config) (string, url.Values, []byte) {
				q := url.Values{}
				q.Set("locale", cfg.Locale)
				for _, f := range groupByFields(cfg.GroupBy) {
					q.Set(f.key, strconv.FormatBool(f.on))
				}
				// Parameters travel in the query string; the body is an
				// empty object, which some upstream revisions insist on.
				return "GET", q, []byte("{}")
			},
		},
		{
			name: "flat-body",
			build: func(cfg Config) (string, url.Values, []byte) {
				payload := map[string]any{"locale": cfg.Locale}
				for _, f := range groupByFields(cfg.GroupBy) {
					payload[f.key] = f.on
				}
				body, _ := json.Marshal(payload)
				return "POST", nil, body
			},
		},
		{
			name: "nested-body",
			build: func(cfg Config) (string, url.Values, []byte) {
				groupBy := map[string]bool{}
				for _, f := range groupByFields(cfg.GroupBy) {
					groupBy[f.key] = f.on
				}
				body, _ := json.Marshal(map[string]any{
					"locale":  cfg.Locale,
					"groupBy": groupBy,
				})
				return "POST", nil, body
			},
		},
	}
}

// CreateReportTask asks WB to start building a remains report, trying each
// request encoding once. The first strategy that returns a non-empty task id
// wins; if all fail the error carries every per-strategy outcome.
func (c *wbClient) CreateReportTask(ctx context.Context, cfg Config) (string, error) {
	var outcomes []StrategyOutcome
	for _, s := range reportStrategies() {
		method, query, body := s.build(cfg)
		resp, err := c.do(ctx, apiRequest{
			method:  method,
			url:     cfg.ReportBaseURL + reportCreatePath,
			query:   query,
			body:    body,
			retries: 1,
		})
		if err != nil {
			c.logger.WithFields(logrus.Fields{"strategy": s.name}).
				Warnf("report task creation failed: %v", err)
			outcomes = append(outcomes, StrategyOutcome{Strategy: s.name, Err: err})
			continue
		}

		var created taskCreatedResponse
		if err := json.Unmarshal(resp, &created); err != nil {
			outcomes = append(outcomes, StrategyOutcome{Strategy: s.name, Err: err})
			continue
		}
		if created.Data.TaskId == "" {
			outcomes = append(outcomes, StrategyOutcome{
				Strategy: s.name,
				Err:      fmt.Errorf("response carried no task id"),
			})
			continue
		}

		c.logger.WithFields(logrus.Fields{
			"strategy": s.name,
			"task_id":  created.Data.TaskId,
		}).Info("report task created")
		return created.Data.TaskId, nil
	}

	return "", &TaskCreationFailedError{Outcomes: outcomes}
}

type pollDecision int

const (
	pollContinue pollDecision = iota
	pollDone
	pollFailed
	pollTimedOut
)

// pollTransition decides the next poller step from the reported status and
// elapsed wall time. Terminal statuses win over an exceeded budget; an
// unknown status means the task is still pending.
func pollTransition(status string, elapsed, budget time.Duration) pollDecision {
	switch strings.ToLower(status) {
	case "done":
		return pollDone
	case "failed", "fail", "error":
		return pollFailed
	}
	if elapsed >= budget {
		return pollTimedOut
	}
	return pollContinue
}

type poller struct {
	client   *wbClient
	interval time.Duration
	timeout  time.Duration

	now   func() time.Time
	sleep func(time.Duration)
}

func newPoller(c *wbClient, cfg Config) *poller {
	return &poller{
		client:   c,
		interval: cfg.PollInterval,
		timeout:  cfg.PollTimeout,
		now:      time.Now,
		sleep:    time.Sleep,
	}
}

// await polls the task status until it is done, failed or past the budget.
func (p *poller) await(ctx context.Context, cfg Config, taskId string) error {
	start := p.now()
	statusURL := cfg.ReportBaseURL + fmt.Sprintf(reportStatusPath, url.PathEscape(taskId))

	var lastStatus string
	for {
		resp, err := p.client.do(ctx, apiRequest{
			method:  "GET",
			url:     statusURL,
			retries: cfg.MaxRetries,
		})
		if err != nil {
			return err
		}

		var status taskStatusResponse
		if err := json.Unmarshal(resp, &status); err != nil {
			return err
		}
		lastStatus = status.Data.Status

		elapsed := p.now().Sub(start)
		switch pollTransition(lastStatus, elapsed, p.timeout) {
		case pollDone:
			return nil
		case pollFailed:
			return &ReportFailedError{TaskId: taskId, Status: lastStatus}
		case pollTimedOut:
			return &ReportTimeoutError{
				TaskId:     taskId,
				LastStatus: lastStatus,
				Elapsed:    elapsed,
				Budget:     p.timeout,
			}
		}

		p.client.logger.WithFields(logrus.Fields{
			"task_id": taskId,
			"status":  lastStatus,
			"elapsed": elapsed.Round(time.Second).String(),
		}).Info("report not ready yet")
		p.sleep(p.interval)

		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// DownloadReport fetches the finished report and validates it is a JSON array
// of items before anything downstream touches it.
func (c *wbClient) DownloadReport(ctx context.Context, cfg Config, taskId string) ([]ReportItem, error) {
	resp, err := c.do(ctx, apiRequest{
		method:  "GET",
		url:     cfg.ReportBaseURL + fmt.Sprintf(reportDownloadPath, url.PathEscape(taskId)),
		retries: cfg.MaxRetries,
	})
	if err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(string(resp))
	if !strings.HasPrefix(trimmed, "[") {
		return nil, &InvalidReportShapeError{Detail: "expected JSON array, got: " + truncateDetail(trimmed, 200)}
	}

	var items []ReportItem
	if err := json.Unmarshal(resp, &items); err != nil {
		return nil, &InvalidReportShapeError{Detail: err.Error()}
	}
	return items, nil
}

// truncateDetail caps s at max bytes without splitting a UTF-8 rune.
func truncateDetail(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
