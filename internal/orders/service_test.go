package orders

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/orbital/internal/common"
	"github.com/ternarybob/orbital/internal/models"
	"github.com/ternarybob/orbital/internal/pool"
	"github.com/ternarybob/orbital/internal/runner"
	configsvc "github.com/ternarybob/orbital/internal/services/config"
	"github.com/ternarybob/orbital/internal/workflows"
)

const l1cReference = "S2A_MSIL1C_20211022T062221_N0301_R048_T39GWH_20211022T064132"

// memLogStore is an in-memory stand-in for the badger-backed event store.
type memLogStore struct {
	mu      sync.Mutex
	entries map[string][]models.OrderLogEntry
}

func newMemLogStore() *memLogStore {
	return &memLogStore{entries: map[string][]models.OrderLogEntry{}}
}

func (s *memLogStore) AppendLog(ctx context.Context, orderID string, entry models.OrderLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[orderID] = append(s.entries[orderID], entry)
	return nil
}

func (s *memLogStore) GetLogs(ctx context.Context, orderID string) ([]models.OrderLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.OrderLogEntry{}, s.entries[orderID]...), nil
}

func (s *memLogStore) DeleteLogs(ctx context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, orderID)
	return nil
}

func (s *memLogStore) CountLogs(ctx context.Context, orderID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries[orderID]), nil
}

// fakeRunner lets tests script the worker outcome per order.
type fakeRunner struct {
	mu      sync.Mutex
	outputs map[string]string
	fail    bool
	block   chan struct{}
	runs    int
	baseDir string
}

func (r *fakeRunner) Run(ctx context.Context, params runner.RunParams) (string, error) {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	r.runs++
	fail := r.fail
	r.mu.Unlock()
	if fail {
		return "", errors.New("plugin failed")
	}

	// Publish a real file so the output-missing recovery can be observed.
	rel := filepath.Join(params.OrderID, "out.zip")
	full := filepath.Join(r.baseDir, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return "", err
	}
	if err := os.WriteFile(full, []byte("zip"), 0644); err != nil {
		return "", err
	}
	r.mu.Lock()
	if r.outputs == nil {
		r.outputs = map[string]string{}
	}
	r.outputs[params.OrderID] = full
	r.mu.Unlock()
	return filepath.ToSlash(rel), nil
}

func (r *fakeRunner) runCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs
}

type serviceFixture struct {
	service *Service
	queue   *Queue
	pool    *pool.WorkerPool
	runner  *fakeRunner
	logs    *memLogStore
}

func writeServiceConfigs(t *testing.T, dir, esaTF, roles string) (string, string) {
	t.Helper()
	esaTFFile := filepath.Join(dir, "esa_tf.config")
	rolesFile := filepath.Join(dir, "roles.yaml")
	require.NoError(t, os.WriteFile(esaTFFile, []byte(esaTF), 0644))
	require.NoError(t, os.WriteFile(rolesFile, []byte(roles), 0644))
	return esaTFFile, rolesFile
}

func newServiceFixture(t *testing.T, esaTF, roles string) *serviceFixture {
	t.Helper()
	dir := t.TempDir()
	esaTFFile, rolesFile := writeServiceConfigs(t, dir, esaTF, roles)

	logger := arbor.NewLogger()
	outputDir := filepath.Join(dir, "output")
	require.NoError(t, os.MkdirAll(outputDir, 0755))

	appConfig := common.NewDefaultConfig()
	appConfig.Paths.OutputDir = outputDir

	workerPool := pool.NewWorkerPool(2, logger)
	workerPool.Start()
	t.Cleanup(workerPool.Stop)

	fake := &fakeRunner{baseDir: outputDir}
	logs := newMemLogStore()
	queue := NewQueue()

	service := NewService(
		queue,
		workflows.NewRegistry(logger, workflows.Builtins()...),
		workerPool,
		fake,
		configsvc.NewService(esaTFFile, rolesFile, logger),
		logs,
		appConfig,
		"http://localhost:8080",
		logger,
	)

	return &serviceFixture{service: service, queue: queue, pool: workerPool, runner: fake, logs: logs}
}

const defaultRoles = `
default_role:
  quota: 5
  profile: user
roles:
  guest:
    quota: 1
    profile: user
  operator:
    quota: 10
    profile: manager
`

func defaultFixture(t *testing.T) *serviceFixture {
	return newServiceFixture(t, "keeping_period: 14400\n", defaultRoles)
}

func submission(reference string) models.SubmissionRequest {
	return models.SubmissionRequest{
		WorkflowID:            "sen2cor_l1c_l2a",
		InputProductReference: models.InputProductReference{Reference: reference},
		WorkflowOptions:       map[string]interface{}{},
	}
}

func waitForStatus(t *testing.T, f *serviceFixture, orderID string, want models.OrderStatus) models.OrderInfo {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		info, err := f.service.GetOrder(orderID)
		require.NoError(t, err)
		if info.Status == want {
			return info
		}
		time.Sleep(10 * time.Millisecond)
	}
	info, _ := f.service.GetOrder(orderID)
	t.Fatalf("order %s never reached %s, currently %s", orderID, want, info.Status)
	return models.OrderInfo{}
}

func TestSubmitWorkflow_HappyPath(t *testing.T) {
	f := defaultFixture(t)

	info, err := f.service.SubmitWorkflow(submission(l1cReference), models.User{Username: "alice"})
	require.NoError(t, err)
	assert.NotEmpty(t, info.ID)
	assert.NotEmpty(t, info.SubmissionDate)
	assert.Contains(t, []models.OrderStatus{models.OrderStatusQueued, models.OrderStatusInProgress, models.OrderStatusCompleted}, info.Status)

	done := waitForStatus(t, f, info.ID, models.OrderStatusCompleted)
	assert.NotEmpty(t, done.CompletedDate)
	require.Len(t, done.OutputProductReference, 1)
	assert.Equal(t, "out.zip", done.OutputProductReference[0].Reference)
	assert.Equal(t, fmt.Sprintf("http://localhost:8080/download/%s/out.zip", info.ID), done.OutputProductReference[0].DownloadURI)

	// Defaults were filled in.
	assert.Equal(t, "rural", done.WorkflowOptions["aerosol_type"])
}

func TestSubmitWorkflow_DoubleSubmitIsIdempotent(t *testing.T) {
	f := defaultFixture(t)

	first, err := f.service.SubmitWorkflow(submission(l1cReference), models.User{Username: "alice"})
	require.NoError(t, err)

	second, err := f.service.SubmitWorkflow(submission(l1cReference), models.User{Username: "alice"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, f.queue.Size())
}

func TestSubmitWorkflow_DedupAcrossUsers(t *testing.T) {
	f := defaultFixture(t)

	first, err := f.service.SubmitWorkflow(submission(l1cReference), models.User{Username: "alice"})
	require.NoError(t, err)
	second, err := f.service.SubmitWorkflow(submission(l1cReference), models.User{Username: "bob"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, f.queue.Size())
	assert.ElementsMatch(t, []string{"alice", "bob"}, f.queue.Users(first.ID))
}

func TestSubmitWorkflow_UnknownWorkflow(t *testing.T) {
	f := defaultFixture(t)

	req := submission(l1cReference)
	req.WorkflowID = "does_not_exist"
	_, err := f.service.SubmitWorkflow(req, models.User{Username: "alice"})
	assert.True(t, IsNotFound(err))
}

func TestSubmitWorkflow_ProductTypeMismatch(t *testing.T) {
	f := defaultFixture(t)

	req := submission("S1A_IW_GRDH_1SDV_20211125T040332_20211125T040401_029739_038CB1_1A18")
	_, err := f.service.SubmitWorkflow(req, models.User{Username: "alice"})

	var requestErr *workflows.RequestError
	assert.ErrorAs(t, err, &requestErr)
}

func TestSubmitWorkflow_UnknownOption(t *testing.T) {
	f := defaultFixture(t)

	req := submission(l1cReference)
	req.WorkflowOptions = map[string]interface{}{"bogus": true}
	_, err := f.service.SubmitWorkflow(req, models.User{Username: "alice"})

	var requestErr *workflows.RequestError
	assert.ErrorAs(t, err, &requestErr)
}

func TestSubmitWorkflow_ExcludedWorkflow(t *testing.T) {
	f := newServiceFixture(t, "excluded_workflows: [sen2cor_l1c_l2a]\n", defaultRoles)

	_, err := f.service.SubmitWorkflow(submission(l1cReference), models.User{Username: "alice"})

	var forbidden *ForbiddenError
	assert.ErrorAs(t, err, &forbidden)
}

func TestSubmitWorkflow_QuotaBoundary(t *testing.T) {
	f := defaultFixture(t)
	f.runner.block = make(chan struct{})
	defer close(f.runner.block)

	user := models.User{Username: "carol", Roles: []string{"guest"}} // quota 1

	// running == cap - 1 == 0: the first submit succeeds.
	first, err := f.service.SubmitWorkflow(submission(l1cReference), user)
	require.NoError(t, err)

	// A second distinct order while the first is still running must fail.
	other := submission("S2B_MSIL1C_20211123T094019_N0301_R007_T18CVQ_20211123T123849")
	_, err = f.service.SubmitWorkflow(other, user)
	var quotaErr *QuotaExceededError
	require.ErrorAs(t, err, &quotaErr)

	// Identical resubmission is not a new order but quota still rejects it
	// while the first run is in flight.
	_, err = f.service.SubmitWorkflow(submission(l1cReference), user)
	assert.ErrorAs(t, err, &quotaErr)
	_ = first
}

func TestSubmitWorkflow_QuotaDisabled(t *testing.T) {
	f := newServiceFixture(t, "enable_quota_check: false\n", defaultRoles)
	f.runner.block = make(chan struct{})
	defer close(f.runner.block)

	user := models.User{Username: "carol", Roles: []string{"guest"}}
	_, err := f.service.SubmitWorkflow(submission(l1cReference), user)
	require.NoError(t, err)
	_, err = f.service.SubmitWorkflow(submission("S2B_MSIL1C_20211123T094019_N0301_R007_T18CVQ_20211123T123849"), user)
	assert.NoError(t, err)
}

func TestSubmitWorkflow_UnknownRoleFallsBackToDefault(t *testing.T) {
	f := defaultFixture(t)

	// "mystery" is not configured: it is skipped and the default role
	// (quota 5) applies, so the submit passes.
	_, err := f.service.SubmitWorkflow(submission(l1cReference), models.User{Username: "dave", Roles: []string{"mystery"}})
	assert.NoError(t, err)
}

func TestSubmitWorkflow_MissingDefaultRoleIsFatal(t *testing.T) {
	f := newServiceFixture(t, "keeping_period: 10\n", "roles:\n  guest:\n    quota: 1\n    profile: user\n")

	_, err := f.service.SubmitWorkflow(submission(l1cReference), models.User{Username: "alice"})

	var configErr *configsvc.ConfigurationError
	assert.ErrorAs(t, err, &configErr)
}

func TestMaybeResubmit_FailedOrderRecovers(t *testing.T) {
	f := defaultFixture(t)
	f.runner.fail = true

	info, err := f.service.SubmitWorkflow(submission(l1cReference), models.User{Username: "alice"})
	require.NoError(t, err)
	waitForStatus(t, f, info.ID, models.OrderStatusFailed)

	failed, err := f.service.GetOrder(info.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, failed.CompletedDate)

	// Next run succeeds: resubmission goes through queued/in_progress back
	// to completed with fresh completion fields.
	f.runner.mu.Lock()
	f.runner.fail = false
	f.runner.mu.Unlock()

	again, err := f.service.SubmitWorkflow(submission(l1cReference), models.User{Username: "alice"})
	require.NoError(t, err)
	assert.Equal(t, info.ID, again.ID)
	assert.Equal(t, 1, f.queue.Size())

	done := waitForStatus(t, f, info.ID, models.OrderStatusCompleted)
	require.Len(t, done.OutputProductReference, 1)
	assert.GreaterOrEqual(t, f.runner.runCount(), 2)
}

func TestMaybeResubmit_OutputMissingRecovery(t *testing.T) {
	f := defaultFixture(t)

	info, err := f.service.SubmitWorkflow(submission(l1cReference), models.User{Username: "alice"})
	require.NoError(t, err)
	waitForStatus(t, f, info.ID, models.OrderStatusCompleted)

	// Delete the published output behind the queue's back.
	f.runner.mu.Lock()
	output := f.runner.outputs[info.ID]
	f.runner.mu.Unlock()
	require.NoError(t, os.Remove(output))

	// Resubmitting the identical payload re-runs the order.
	_, err = f.service.SubmitWorkflow(submission(l1cReference), models.User{Username: "alice"})
	require.NoError(t, err)

	done := waitForStatus(t, f, info.ID, models.OrderStatusCompleted)
	require.Len(t, done.OutputProductReference, 1)
	assert.FileExists(t, output)
	assert.GreaterOrEqual(t, f.runner.runCount(), 2)
	assert.Equal(t, 1, f.queue.Size())
}

func TestGetOrder_NotFound(t *testing.T) {
	f := defaultFixture(t)
	_, err := f.service.GetOrder("missing")
	assert.True(t, IsNotFound(err))
}

func TestGetOrders_ManagerSeesEverything(t *testing.T) {
	f := defaultFixture(t)

	_, err := f.service.SubmitWorkflow(submission(l1cReference), models.User{Username: "alice"})
	require.NoError(t, err)

	mine, err := f.service.GetOrders(nil, models.User{Username: "nobody"}, false)
	require.NoError(t, err)
	assert.Empty(t, mine)

	managed, err := f.service.GetOrders(nil, models.User{Username: "boss", Roles: []string{"operator"}}, false)
	require.NoError(t, err)
	assert.Len(t, managed, 1)
}

func TestEvictOrders_ReleasesTaskAndLogs(t *testing.T) {
	f := newServiceFixture(t, "keeping_period: 0\n", defaultRoles)

	info, err := f.service.SubmitWorkflow(submission(l1cReference), models.User{Username: "alice"})
	require.NoError(t, err)
	waitForStatus(t, f, info.ID, models.OrderStatusCompleted)

	// keeping_period 0: anything completed is older than the bound.
	time.Sleep(50 * time.Millisecond)
	f.service.EvictOrders()

	_, err = f.service.GetOrder(info.ID)
	assert.True(t, IsNotFound(err))
	_, ok := f.pool.Get(info.ID)
	assert.False(t, ok)
	count, _ := f.logs.CountLogs(context.Background(), info.ID)
	assert.Zero(t, count)
}

func TestGetOrderLog_ChronologicalMessages(t *testing.T) {
	f := defaultFixture(t)

	info, err := f.service.SubmitWorkflow(submission(l1cReference), models.User{Username: "alice"})
	require.NoError(t, err)
	waitForStatus(t, f, info.ID, models.OrderStatusCompleted)

	require.NoError(t, f.logs.AppendLog(context.Background(), info.ID, models.OrderLogEntry{Message: "first"}))
	require.NoError(t, f.logs.AppendLog(context.Background(), info.ID, models.OrderLogEntry{Message: "second"}))

	entries, err := f.service.GetOrderLog(context.Background(), info.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "first", entries[0].Message)
	assert.Equal(t, "second", entries[1].Message)
}
