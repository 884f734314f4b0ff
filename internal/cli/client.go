package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// RunResponse — run из API.
type RunResponse struct {
	ID         string `json:"id"`
	JobName    string `json:"job_name"`
	Status     string `json:"status"`
	Trigger    string `json:"trigger"`
	DryRun     bool   `json:"dry_run"`
	Error      string `json:"error,omitempty"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// JobSummary — задача в статусе планировщика.
type JobSummary struct {
	Name        string       `json:"name"`
	Schedule    string       `json:"schedule"`
	Handler     string       `json:"handler,omitempty"`
	Concurrency string       `json:"concurrency"`
	Timeout     string       `json:"timeout"`
	NextFireAt  string       `json:"next_fire_at,omitempty"`
	Running     int          `json:"running"`
	LastRun     *RunResponse `json:"last_run,omitempty"`
}

// SchedulerStatus — состояние планировщика из API.
type SchedulerStatus struct {
	Running  bool         `json:"running"`
	Leader   bool         `json:"leader"`
	HolderID string       `json:"holder_id"`
	Jobs     []JobSummary `json:"jobs"`
}

// SchedulerAction — результат start/stop.
type SchedulerAction struct {
	Running bool `json:"running"`
	Changed bool `json:"changed"`
}

// --- Request types ---

// RunJobRequest — ручной запуск задачи.
type RunJobRequest struct {
	DryRun bool `json:"dry_run"`
}

// ListRunsOpts — параметры фильтрации истории.
type ListRunsOpts struct {
	Job   string
	Limit int
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Reason  string `json:"reason,omitempty"`
	} `json:"error"`
}

// APIError — ответ API с ошибкой.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("API error: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// --- Client ---

// Ручной запуск ждёт задачу до MANUAL_RUN_TIMEOUT на сервере,
// поэтому таймаут клиента заметно больше.
const defaultClientTimeout = 5 * time.Minute

// Client — HTTP-клиент для wikiops API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient создаёт клиент для API. Пустой token — без Authorization.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: defaultClientTimeout,
		},
	}
}

// --- Scheduler ---

// Status возвращает состояние планировщика.
func (c *Client) Status() (*SchedulerStatus, error) {
	var st SchedulerStatus
	err := c.get("/api/v1/scheduler", &st)
	return &st, err
}

// Start запускает планировщик.
func (c *Client) Start() (*SchedulerAction, error) {
	var res SchedulerAction
	err := c.post("/api/v1/scheduler/start", nil, &res)
	return &res, err
}

// Stop останавливает планировщик.
func (c *Client) Stop() (*SchedulerAction, error) {
	var res SchedulerAction
	err := c.post("/api/v1/scheduler/stop", nil, &res)
	return &res, err
}

// --- Runs ---

// RunJob запускает задачу вручную и ждёт результат.
func (c *Client) RunJob(name string, req RunJobRequest) (*RunResponse, error) {
	var run RunResponse
	err := c.post("/api/v1/jobs/"+url.PathEscape(name)+"/run", req, &run)
	return &run, err
}

// ListRuns возвращает историю выполнений.
func (c *Client) ListRuns(opts ListRunsOpts) ([]RunResponse, error) {
	params := url.Values{}
	if opts.Job != "" {
		params.Set("job", opts.Job)
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}

	var runs []RunResponse
	err := c.list("/api/v1/runs", params, &runs)
	return runs, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return &APIError{StatusCode: resp.StatusCode}
	}

	return &APIError{StatusCode: resp.StatusCode, Code: er.Error.Code, Message: er.Error.Message}
}
