package workflows

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ternarybob/orbital/internal/models"
)

// EOPFSafeToZarr converts a Sentinel-2 L1C SAFE product to the Zarr store
// layout using the eopf converter CLI.
func EOPFSafeToZarr() *models.WorkflowDescriptor {
	return &models.WorkflowDescriptor{
		ID:                "eopf_convert_to_zarr",
		Name:              "EOPF_Convert_To_Zarr",
		Description:       "Format conversion of a Sentinel-2 L1C product from SAFE to the Zarr store layout",
		Version:           "0.1",
		InputProductType:  "S2MSI1C",
		OutputProductType: "S2MSI1C_ZARR",
		ProcessorName:     "eopf",
		ProcessorVersion:  "1.5",
		// The converter re-encodes the product; provenance is carried by the
		// input, so no trace is pushed for conversions.
		SupportsTraceability: false,
		Source:               "orbital/eopf",
		Options: []models.WorkflowOption{
			{
				Name:        "consolidate_metadata",
				Description: "Consolidate the Zarr store metadata into a single key after conversion",
				Type:        models.OptionTypeBoolean,
				Default:     true,
			},
			{
				Name:        "chunk_size",
				Description: "Chunk edge length in pixels used for the measurement arrays",
				Type:        models.OptionTypeInteger,
				Default:     1024,
				Enum:        []interface{}{512, 1024, 2048},
			},
		},
		Execute: runEOPFConvert,
	}
}

func runEOPFConvert(params models.ExecuteParams) (string, error) {
	base := strings.TrimSuffix(filepath.Base(params.ProductPath), ".SAFE")
	target := filepath.Join(params.OutputDir, base+".zarr")
	if err := os.MkdirAll(params.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create plugin output directory: %w", err)
	}

	args := []string{"convert", params.ProductPath, target,
		"--chunk-size", fmt.Sprintf("%d", intOption(params.Options, "chunk_size", 1024)),
	}
	if boolOption(params.Options, "consolidate_metadata", true) {
		args = append(args, "--consolidate")
	}

	cmd := exec.Command("eopf", args...)
	cmd.Dir = params.ProcessingDir
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("eopf conversion failed: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return target, nil
}

// Builtins returns the workflow descriptors compiled into this binary.
func Builtins() []*models.WorkflowDescriptor {
	return []*models.WorkflowDescriptor{
		Sen2Cor(),
		EOPFSafeToZarr(),
	}
}
