// -----------------------------------------------------------------------
// Last Modified: Monday, 20th April 2026 3:34:26 pm
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/orbital/internal/common"
	"github.com/ternarybob/orbital/internal/interfaces"
	"github.com/ternarybob/orbital/internal/models"
	"github.com/ternarybob/orbital/internal/trace"
)

// RunParams carries one job invocation from the coordinator to a worker.
type RunParams struct {
	OrderID            string
	UserID             string
	ProductReference   models.InputProductReference
	WorkflowID         string
	Options            map[string]interface{}
	EnableTraceability bool
	EnableMonitoring   bool
	MonitoringInterval time.Duration
}

// Runner executes transformation jobs on the worker plane: download, unpack,
// plugin invocation, repackaging, optional trace push.
type Runner struct {
	registry   interfaces.WorkflowRegistry
	downloader interfaces.Downloader
	logStore   interfaces.OrderLogStorage
	config     *common.Config
	logger     arbor.ILogger
}

// NewRunner wires a runner against the shared services.
func NewRunner(registry interfaces.WorkflowRegistry, downloader interfaces.Downloader, logStore interfaces.OrderLogStorage, config *common.Config, logger arbor.ILogger) *Runner {
	return &Runner{
		registry:   registry,
		downloader: downloader,
		logStore:   logStore,
		config:     config,
		logger:     logger,
	}
}

// Run performs one transformation and returns the relative path of the
// published output beneath the output root.
func (r *Runner) Run(ctx context.Context, params RunParams) (string, error) {
	events := NewEventLog(params.OrderID, r.logger, r.logStore)
	events.Info("workflow %q started for product %q", params.WorkflowID, params.ProductReference.Reference)

	workflow, err := r.registry.ByID(params.WorkflowID)
	if err != nil {
		events.Error("workflow lookup failed: %v", err)
		return "", err
	}

	processingDir := filepath.Join(r.config.Paths.WorkingDir, params.OrderID)
	outputBinderDir := filepath.Join(processingDir, "output_binder")
	for _, dir := range []string{processingDir, outputBinderDir, r.config.Paths.OutputDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			events.Error("failed to prepare directories: %v", err)
			return "", fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	if params.EnableMonitoring {
		monitor := NewResourceMonitor(params.OrderID, int32(os.Getpid()), processingDir, params.MonitoringInterval, events)
		monitor.Start()
		defer monitor.Stop()
	}

	archive, err := r.downloader.Download(ctx, params.ProductReference.Reference, processingDir, params.ProductReference.DataSourceName, params.OrderID)
	if err != nil {
		events.Error("download failed: %v", err)
		return "", err
	}
	events.Info("product downloaded to %q", filepath.Base(archive))

	productRoot, err := Unzip(archive, processingDir)
	if err != nil {
		events.Error("unpack failed: %v", err)
		return "", err
	}
	events.Info("product unpacked as %q", productRoot)

	pluginOutput, err := workflow.Execute(models.ExecuteParams{
		ProductPath:   filepath.Join(processingDir, productRoot),
		ProcessingDir: processingDir,
		OutputDir:     outputBinderDir,
		Options:       params.Options,
		OrderID:       params.OrderID,
		UserID:        params.UserID,
	})
	if err != nil {
		events.Error("plugin execution failed: %v", err)
		return "", err
	}
	events.Info("plugin produced %q", filepath.Base(pluginOutput))

	relativePath, outputPath, err := r.publish(params.OrderID, pluginOutput, events)
	if err != nil {
		events.Error("publishing failed: %v", err)
		return "", err
	}

	r.applyOutputOwnership(outputPath, events)

	if r.shouldPushTrace(params, workflow) {
		r.pushTrace(params, workflow, outputPath, events)
	}

	if !r.config.Service.Debug {
		if err := os.RemoveAll(processingDir); err != nil {
			events.Warn("failed to remove working directory: %v", err)
		}
	} else {
		events.Info("debug mode set, keeping working directory %q", processingDir)
	}

	events.Info("workflow %q completed, output %q", params.WorkflowID, relativePath)
	return relativePath, nil
}

// publish repackages the plugin output as a .zip under the per-order output
// directory. The archive lands via atomic rename so readers never observe a
// partial file.
func (r *Runner) publish(orderID, pluginOutput string, events *EventLog) (string, string, error) {
	base := strings.TrimSuffix(filepath.Base(pluginOutput), ".SAFE")
	zipName := base + ".zip"

	orderOutputDir := filepath.Join(r.config.Paths.OutputDir, orderID)
	if err := os.MkdirAll(orderOutputDir, 0755); err != nil {
		return "", "", fmt.Errorf("failed to create %s: %w", orderOutputDir, err)
	}

	staging := filepath.Join(orderOutputDir, "."+zipName+".partial")
	if err := ZipDir(pluginOutput, staging); err != nil {
		os.Remove(staging)
		return "", "", err
	}
	finalPath := filepath.Join(orderOutputDir, zipName)
	if err := os.Rename(staging, finalPath); err != nil {
		os.Remove(staging)
		return "", "", fmt.Errorf("failed to publish output: %w", err)
	}

	events.Info("output published as %q", zipName)
	return filepath.ToSlash(filepath.Join(orderID, zipName)), finalPath, nil
}

// applyOutputOwnership hands the published file to the configured owner.
// Failures are warnings, not fatal.
func (r *Runner) applyOutputOwnership(outputPath string, events *EventLog) {
	uid := r.config.Service.OutputOwnerID
	gid := r.config.Service.OutputGroupOwnerID
	if uid < 0 && gid < 0 {
		return
	}
	if err := os.Chown(outputPath, uid, gid); err != nil {
		events.Warn("failed to change output ownership: %v", err)
	}
}

func (r *Runner) shouldPushTrace(params RunParams, workflow *models.WorkflowDescriptor) bool {
	return params.EnableTraceability && workflow.SupportsTraceability
}

// pushTrace hashes, signs and uploads the provenance record. Any failure
// keeps the trace file on disk for manual recovery and never fails the
// order.
func (r *Runner) pushTrace(params RunParams, workflow *models.WorkflowDescriptor, outputPath string, events *EventLog) {
	tracePath := filepath.Join(r.config.Paths.TracesDir, fmt.Sprintf("trace_%s.json", params.OrderID))

	if err := os.MkdirAll(r.config.Paths.TracesDir, 0755); err != nil {
		events.Warn("trace push skipped, cannot create traces directory: %v", err)
		return
	}

	t, err := trace.New(r.config.Service.TraceConfigFile, tracePath, r.logger)
	if err != nil {
		events.Warn("trace push failed: %v", err)
		return
	}

	if err := r.buildTrace(t, params, workflow, outputPath); err != nil {
		events.Warn("trace push failed, trace kept at %q: %v", tracePath, err)
		return
	}
	if err := t.Push(); err != nil {
		events.Warn("trace push failed, trace kept at %q: %v", tracePath, err)
		return
	}
	events.Info("trace pushed for output %q", filepath.Base(outputPath))
}

func (r *Runner) buildTrace(t *trace.Trace, params RunParams, workflow *models.WorkflowDescriptor, outputPath string) error {
	if err := t.Hash(outputPath); err != nil {
		return err
	}

	attributes := map[string]interface{}{
		"platformShortName": platformShortName(params.ProductReference.Reference),
		"processorName":     workflow.ProcessorName,
		"processorVersion":  workflow.ProcessorVersion,
		"productType":       workflow.OutputProductType,
	}
	if params.ProductReference.ContentDate != nil {
		attributes["beginningDateTime"] = params.ProductReference.ContentDate.Start
	}
	if err := t.UpdateAttributes(attributes); err != nil {
		return err
	}
	return t.Sign()
}

// platformShortName derives the mission name from the product reference
// naming convention.
func platformShortName(reference string) string {
	switch {
	case strings.HasPrefix(reference, "S1"):
		return "SENTINEL-1"
	case strings.HasPrefix(reference, "S2"):
		return "SENTINEL-2"
	case strings.HasPrefix(reference, "S3"):
		return "SENTINEL-3"
	case strings.HasPrefix(reference, "S5P"):
		return "SENTINEL-5P"
	}
	return ""
}
