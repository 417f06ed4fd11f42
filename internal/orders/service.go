// -----------------------------------------------------------------------
// Last Modified: Thursday, 23rd April 2026 1:27:54 pm
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/orbital/internal/common"
	"github.com/ternarybob/orbital/internal/interfaces"
	"github.com/ternarybob/orbital/internal/models"
	"github.com/ternarybob/orbital/internal/runner"
	"github.com/ternarybob/orbital/internal/services/config"
	"github.com/ternarybob/orbital/internal/workflows"
)

// evictionSchedule runs the periodic eviction sweep in addition to the
// fire-and-forget eviction scheduled on every submit.
const evictionSchedule = "*/10 * * * *"

// JobRunner executes one transformation on the worker plane.
type JobRunner interface {
	Run(ctx context.Context, params runner.RunParams) (string, error)
}

// Service is the coordinator: admission, dedup, quota enforcement, querying
// and eviction over the process-wide order queue.
type Service struct {
	queue        *Queue
	registry     interfaces.WorkflowRegistry
	pool         interfaces.TaskPool
	runner       JobRunner
	configReader *config.Service
	logStore     interfaces.OrderLogStorage
	uriRoot      string
	logger       arbor.ILogger
	cron         *cron.Cron
	appConfig    *common.Config
}

// NewService wires the coordinator.
func NewService(
	queue *Queue,
	registry interfaces.WorkflowRegistry,
	pool interfaces.TaskPool,
	jobRunner JobRunner,
	configReader *config.Service,
	logStore interfaces.OrderLogStorage,
	appConfig *common.Config,
	uriRoot string,
	logger arbor.ILogger,
) *Service {
	return &Service{
		queue:        queue,
		registry:     registry,
		pool:         pool,
		runner:       jobRunner,
		configReader: configReader,
		logStore:     logStore,
		appConfig:    appConfig,
		uriRoot:      uriRoot,
		logger:       logger,
		cron:         cron.New(),
	}
}

// Start launches the periodic eviction schedule.
func (s *Service) Start() error {
	if _, err := s.cron.AddFunc(evictionSchedule, func() { s.EvictOrders() }); err != nil {
		return fmt.Errorf("failed to schedule eviction: %w", err)
	}
	s.cron.Start()
	return nil
}

// Stop halts the eviction schedule.
func (s *Service) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// SubmitWorkflow runs the admission sequence and dispatches (or reuses) the
// order. Admission errors return synchronously; everything after dispatch
// surfaces only through order status and log.
func (s *Service) SubmitWorkflow(req models.SubmissionRequest, user models.User) (models.OrderInfo, error) {
	cfg, err := s.configReader.Read()
	if err != nil {
		return models.OrderInfo{}, err
	}

	// Eviction must never delay the submission response.
	go s.EvictOrders()

	userID := user.Username
	if userID == "" {
		userID = models.DefaultUser
	}

	if cfg.EnableAuthorizationCheck && cfg.Profile(user.Roles) == models.ProfileUnauthorized {
		return models.OrderInfo{}, &ForbiddenError{Message: fmt.Sprintf(
			"user %q is not authorized to submit transformation orders", userID)}
	}

	if err := s.enforceQuota(cfg, userID, user.Roles); err != nil {
		return models.OrderInfo{}, err
	}

	workflow, err := s.registry.ByID(req.WorkflowID)
	if err != nil {
		return models.OrderInfo{}, err
	}
	if cfg.WorkflowExcluded(workflow.ID) {
		return models.OrderInfo{}, &ForbiddenError{Message: fmt.Sprintf(
			"workflow %q is not available for submission", workflow.ID)}
	}

	if err := workflows.CheckProductConsistency(workflow.InputProductType, req.InputProductReference.Reference, workflow.ID); err != nil {
		return models.OrderInfo{}, err
	}

	submitted := req.WorkflowOptions
	if submitted == nil {
		submitted = map[string]interface{}{}
	}
	if err := workflows.ValidateOptions(workflow.ID, submitted, workflow.Options); err != nil {
		return models.OrderInfo{}, err
	}
	options, err := workflows.FillWithDefaults(submitted, workflow.Options)
	if err != nil {
		return models.OrderInfo{}, err
	}

	traceEnabled := cfg.EnableTraceability &&
		!cfg.WorkflowUntraced(workflow.ID) &&
		workflow.SupportsTraceability

	orderID := common.NewOrderID(workflow.ID, req.InputProductReference, options, traceEnabled)

	if existing, ok := s.queue.Get(orderID); ok {
		s.logger.Info().
			Str("order_id", orderID).
			Str("user_id", userID).
			Msg("Order already in queue, checking for resubmission")
		existing.MaybeResubmit()
		s.queue.AddOrder(existing, userID)
		return existing.GetInfo(), nil
	}

	params := runner.RunParams{
		OrderID:            orderID,
		UserID:             userID,
		ProductReference:   req.InputProductReference,
		WorkflowID:         workflow.ID,
		Options:            options,
		EnableTraceability: traceEnabled,
		EnableMonitoring:   cfg.EnableMonitoring,
		MonitoringInterval: time.Duration(cfg.MonitoringPollingTimeS) * time.Second,
	}
	taskFn := func(ctx context.Context) (string, error) {
		return s.runner.Run(ctx, params)
	}

	order := NewTransformationOrder(
		orderID,
		req.InputProductReference,
		workflow.ID,
		workflow.Name,
		options,
		taskFn,
		s.pool,
		s.appConfig.Paths.OutputDir,
		s.uriRoot,
		s.logStore,
		s.logger,
	)
	order.Submit()
	s.queue.AddOrder(order, userID)

	s.logger.Info().
		Str("order_id", orderID).
		Str("workflow_id", workflow.ID).
		Str("user_id", userID).
		Str("product", req.InputProductReference.Reference).
		Msg("Transformation order submitted")

	return order.GetInfo(), nil
}

// enforceQuota applies the per-user cap on non-terminal orders.
func (s *Service) enforceQuota(cfg *config.ServiceConfig, userID string, roles []string) error {
	if !cfg.EnableQuotaCheck {
		return nil
	}
	userCap := cfg.Quota(roles, s.logger)
	running := s.queue.CountUncompletedOrders(userID)
	if running >= userCap {
		return &QuotaExceededError{Message: fmt.Sprintf(
			"user %q has %d uncompleted transformation orders, the user quota of %d has been exceeded",
			userID, running, userCap)}
	}
	return nil
}

// Profile resolves the caller's profile from the current configuration.
func (s *Service) Profile(user models.User) (models.Profile, error) {
	cfg, err := s.configReader.Read()
	if err != nil {
		return "", err
	}
	return cfg.Profile(user.Roles), nil
}

// GetOrders lists order views matching the filters. Managers see every
// order; everyone else sees their own bucket.
func (s *Service) GetOrders(filters []Filter, user models.User, unrestricted bool) ([]models.OrderInfo, error) {
	filterByUser := !unrestricted
	if filterByUser {
		if profile, err := s.Profile(user); err == nil && profile == models.ProfileManager {
			filterByUser = false
		}
	}
	userID := user.Username
	if userID == "" {
		userID = models.DefaultUser
	}
	return s.queue.GetOrders(filters, userID, filterByUser)
}

// GetOrder returns one order's view.
func (s *Service) GetOrder(orderID string) (models.OrderInfo, error) {
	order, ok := s.queue.Get(orderID)
	if !ok {
		return models.OrderInfo{}, fmt.Errorf("order %q: %w", orderID, ErrOrderNotFound)
	}
	return order.GetInfo(), nil
}

// GetOrderLog returns the chronologically ordered log events of one order.
func (s *Service) GetOrderLog(ctx context.Context, orderID string) ([]models.OrderLogEntry, error) {
	order, ok := s.queue.Get(orderID)
	if !ok {
		return nil, fmt.Errorf("order %q: %w", orderID, ErrOrderNotFound)
	}
	return order.GetLog(ctx)
}

// EvictOrders removes every order completed longer ago than the configured
// keeping period, releasing its task registration and stored log events.
func (s *Service) EvictOrders() {
	cfg, err := s.configReader.Read()
	if err != nil {
		s.logger.Warn().Err(err).Msg("Eviction skipped, configuration unreadable")
		return
	}

	evicted := s.queue.RemoveOldOrders(cfg.KeepingPeriod, time.Now().UTC())
	for _, orderID := range evicted {
		if forgetter, ok := s.pool.(interface{ Forget(string) }); ok {
			forgetter.Forget(orderID)
		}
		if err := s.logStore.DeleteLogs(context.Background(), orderID); err != nil {
			s.logger.Warn().Err(err).Str("order_id", orderID).Msg("Failed to delete evicted order logs")
		}
		s.logger.Info().Str("order_id", orderID).Msg("Order evicted")
	}
}

// QueueSize returns the number of registered orders.
func (s *Service) QueueSize() int {
	return s.queue.Size()
}

// IsNotFound reports whether err represents a missing workflow or order.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrOrderNotFound) || errors.Is(err, workflows.ErrWorkflowNotFound)
}
