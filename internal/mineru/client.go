package mineru

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"medbill/internal/config"
	"medbill/internal/logger"
	"medbill/internal/port"
)

const defaultBaseURL = "https://mineru.net/api/v4"

// Client implements port.BatchParser against the MinerU online API.
//
// Flow: POST /file-urls/batch allocates one pre-signed upload slot per
// file, each file's bytes are PUT to its slot, then
// GET /extract-results/batch/{id} is polled until every per-file entry
// reports done or failed.
type Client struct {
	api          *resty.Client // authorized calls against the MinerU API
	transfer     *resty.Client // pre-signed uploads/downloads, no auth header
	baseURL      string
	enableOCR    bool
	language     string
	pollInterval time.Duration
	pollTimeout  time.Duration
}

// NewClient creates a MinerU client from config.
func NewClient(cfg *config.MinerUConfig) *Client {
	interval := time.Duration(cfg.PollIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	timeout := time.Duration(cfg.PollTimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return newClient(cfg, strings.TrimRight(cfg.BaseURL, "/"), interval, timeout)
}

// NewClientWithEndpoint creates a client pointing at a custom API base URL (for testing).
func NewClientWithEndpoint(cfg *config.MinerUConfig, baseURL string) *Client {
	c := NewClient(cfg)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

func newClient(cfg *config.MinerUConfig, baseURL string, interval, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	api := resty.New().
		SetHeader("Authorization", "Bearer "+cfg.Token).
		SetHeader("Content-Type", "application/json").
		SetTimeout(60 * time.Second)

	// Pre-signed slot URLs reject extra auth headers, so transfers go
	// through a bare client. Archive downloads can be large.
	transfer := resty.New().SetTimeout(5 * time.Minute)

	return &Client{
		api:          api,
		transfer:     transfer,
		baseURL:      baseURL,
		enableOCR:    cfg.EnableOCR,
		language:     cfg.Language,
		pollInterval: interval,
		pollTimeout:  timeout,
	}
}

// apiEnvelope is the MinerU response wrapper. Note that it carries no
// batch-level state: completion state lives inside each extract_result
// entry, never at this level.
type apiEnvelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type slotRequest struct {
	EnableOCR bool            `json:"is_ocr"`
	Language  string          `json:"language,omitempty"`
	Files     []slotFileEntry `json:"files"`
}

type slotFileEntry struct {
	Name  string `json:"name"`
	IsOCR bool   `json:"is_ocr"`
}

type slotData struct {
	BatchID  string   `json:"batch_id"`
	FileURLs []string `json:"file_urls"`
}

type resultData struct {
	BatchID       string        `json:"batch_id"`
	ExtractResult []resultEntry `json:"extract_result"`
}

type resultEntry struct {
	FileName   string `json:"file_name"`
	State      string `json:"state"`
	FullZipURL string `json:"full_zip_url"`
	ErrMsg     string `json:"err_msg"`
}

// Submit requests one upload slot per file in a single batch request and
// transfers each file's bytes to its assigned slot. Fail-fast: any slot
// allocation or transfer failure aborts the whole batch.
func (c *Client) Submit(ctx context.Context, files []port.FileInput) (*port.Batch, error) {
	if len(files) == 0 {
		return nil, &SubmissionError{Err: errors.New("no files to submit")}
	}

	req := slotRequest{EnableOCR: c.enableOCR, Language: c.language}
	for _, f := range files {
		req.Files = append(req.Files, slotFileEntry{Name: f.Name, IsOCR: c.enableOCR})
	}

	var env apiEnvelope
	resp, err := c.api.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&env).
		Post(c.baseURL + "/file-urls/batch")
	if err != nil {
		return nil, &SubmissionError{Err: fmt.Errorf("requesting upload slots: %w", err)}
	}
	if resp.IsError() {
		return nil, &SubmissionError{Err: fmt.Errorf("slot allocation returned status %d: %s", resp.StatusCode(), resp.String())}
	}
	if env.Code != 0 {
		return nil, &SubmissionError{Err: fmt.Errorf("slot allocation returned code %d: %s", env.Code, env.Msg)}
	}

	var slots slotData
	if err := json.Unmarshal(env.Data, &slots); err != nil {
		return nil, &SubmissionError{Err: fmt.Errorf("decoding slot response: %w", err)}
	}
	if slots.BatchID == "" || len(slots.FileURLs) != len(files) {
		return nil, &SubmissionError{Err: fmt.Errorf("expected %d upload slots, got %d (batch %q)", len(files), len(slots.FileURLs), slots.BatchID)}
	}

	batch := &port.Batch{ID: slots.BatchID}
	for i, f := range files {
		batch.Files = append(batch.Files, port.BatchFile{Name: f.Name, UploadURL: slots.FileURLs[i]})
	}

	log := logger.WithComponent("mineru").WithField("batch_id", batch.ID)
	for i, f := range files {
		upResp, err := c.transfer.R().
			SetContext(ctx).
			SetBody(f.Data).
			Put(batch.Files[i].UploadURL)
		if err != nil {
			return nil, &SubmissionError{Err: fmt.Errorf("uploading %s: %w", f.Name, err)}
		}
		if upResp.IsError() {
			return nil, &SubmissionError{Err: fmt.Errorf("uploading %s: status %d", f.Name, upResp.StatusCode())}
		}
		log.WithField("file", f.Name).Debug("uploaded file to slot")
	}

	log.WithField("files", len(files)).Info("batch submitted")
	return batch, nil
}

// Poll queries batch status at the configured interval until every
// per-file entry is terminal or the timeout elapses. The terminal check
// reads each entry's own state field; the response envelope carries no
// usable state.
//
// On timeout (or context cancellation) the statuses gathered so far are
// returned together with a *PollTimeoutError, so files that already
// reached a terminal state keep their outcome.
func (c *Client) Poll(ctx context.Context, batch *port.Batch) (map[string]port.FileStatus, error) {
	log := logger.WithComponent("mineru").WithField("batch_id", batch.ID)
	statuses := make(map[string]port.FileStatus, len(batch.Files))

	start := time.Now()
	deadline := start.Add(c.pollTimeout)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		entries, err := c.batchResults(ctx, batch.ID)
		if err != nil {
			// Transient transport/API hiccups don't abort the poll;
			// the timeout bounds how long we keep trying.
			log.WithError(err).Warn("status query failed, will retry")
		} else {
			allTerminal := len(entries) >= len(batch.Files)
			for _, e := range entries {
				st := port.FileStatus{
					FileName: e.FileName,
					State:    port.FileState(e.State),
					ZipURL:   e.FullZipURL,
					ErrMsg:   e.ErrMsg,
				}
				// A terminal state never regresses.
				if prev, ok := statuses[st.FileName]; !ok || !prev.State.IsTerminal() {
					statuses[st.FileName] = st
				}
				if !st.State.IsTerminal() {
					allTerminal = false
				}
			}
			if allTerminal && len(entries) > 0 {
				log.WithField("waited", time.Since(start).Round(time.Millisecond)).Info("batch reached terminal state")
				return statuses, nil
			}
		}

		select {
		case <-ctx.Done():
			return statuses, &PollTimeoutError{
				BatchID: batch.ID,
				Waited:  time.Since(start),
				Pending: c.pendingFiles(batch, statuses),
				Err:     ctx.Err(),
			}
		case <-ticker.C:
			if !time.Now().Before(deadline) {
				return statuses, &PollTimeoutError{
					BatchID: batch.ID,
					Waited:  c.pollTimeout,
					Pending: c.pendingFiles(batch, statuses),
				}
			}
		}
	}
}

func (c *Client) batchResults(ctx context.Context, batchID string) ([]resultEntry, error) {
	var env apiEnvelope
	resp, err := c.api.R().
		SetContext(ctx).
		SetResult(&env).
		Get(c.baseURL + "/extract-results/batch/" + batchID)
	if err != nil {
		return nil, fmt.Errorf("querying batch status: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("batch status returned status %d: %s", resp.StatusCode(), resp.String())
	}
	if env.Code != 0 {
		return nil, fmt.Errorf("batch status returned code %d: %s", env.Code, env.Msg)
	}
	var data resultData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("decoding batch status: %w", err)
	}
	return data.ExtractResult, nil
}

func (c *Client) pendingFiles(batch *port.Batch, statuses map[string]port.FileStatus) []string {
	var pending []string
	for _, f := range batch.Files {
		if st, ok := statuses[f.Name]; !ok || !st.State.IsTerminal() {
			pending = append(pending, f.Name)
		}
	}
	return pending
}

// Fetch downloads the result archive for a done file.
func (c *Client) Fetch(ctx context.Context, status port.FileStatus) ([]byte, error) {
	if status.State != port.StateDone {
		return nil, &FetchError{FileName: status.FileName, Err: fmt.Errorf("no result archive for state %q", status.State)}
	}
	if status.ZipURL == "" {
		return nil, &FetchError{FileName: status.FileName, Err: errors.New("done entry carries no archive location")}
	}
	resp, err := c.transfer.R().SetContext(ctx).Get(status.ZipURL)
	if err != nil {
		return nil, &FetchError{FileName: status.FileName, Err: err}
	}
	if resp.IsError() {
		return nil, &FetchError{FileName: status.FileName, Err: fmt.Errorf("download returned status %d", resp.StatusCode())}
	}
	return resp.Body(), nil
}
