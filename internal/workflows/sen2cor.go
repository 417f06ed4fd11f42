package workflows

import (
	"encoding/xml"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ternarybob/orbital/internal/models"
)

const sen2corConfileName = "L2A_GIPP.xml"

const srtmDownloadAddress = "http://srtm.csi.cgiar.org/wp-content/uploads/files/srtm_5x5/TIFF/"

// Sen2Cor runs the Sen2Cor atmospheric-correction processor, producing an
// L2A product from an L1C input.
func Sen2Cor() *models.WorkflowDescriptor {
	return &models.WorkflowDescriptor{
		ID:                "sen2cor_l1c_l2a",
		Name:              "Sen2Cor_L1C_L2A",
		Description:       "Product processing from Sentinel-2 L1C to L2A. Processor V2.10",
		Version:           "0.2",
		InputProductType:  "S2MSI1C",
		OutputProductType: "S2MSI2A",
		ProcessorName:     "Sen2Cor",
		ProcessorVersion:  "2.10",
		SupportsTraceability: true,
		Source:            "orbital/sen2cor",
		Options: []models.WorkflowOption{
			{
				Name:        "aerosol_type",
				Description: "Default processing via configuration is the rural (continental) aerosol type with mid latitude summer and an ozone concentration of 331 Dobson Units",
				Type:        models.OptionTypeString,
				Default:     "rural",
				Enum:        []interface{}{"maritime", "rural"},
			},
			{
				Name:        "mid_latitude",
				Description: "If 'auto' the atmosphere profile will be determined automatically by the processor, selecting winter or summer atmosphere profile based on the acquisition date and geographic location of the tile",
				Type:        models.OptionTypeString,
				Default:     "summer",
				Enum:        []interface{}{"summer", "winter", "auto"},
			},
			{
				Name:        "ozone_content",
				Description: "0: to get the best approximation from metadata, else select for midlatitude summer (MS) atmosphere: 250, 290, 331 (standard MS), 370, 410, 450; for midlatitude winter (MW) atmosphere: 250, 290, 330, 377 (standard MW), 420, 460",
				Type:        models.OptionTypeInteger,
				Default:     331,
				Enum:        []interface{}{0, 250, 290, 330, 331, 370, 377, 410, 420, 450, 460},
			},
			{
				Name:        "cirrus_correction",
				Description: "false: no cirrus correction applied, true: cirrus correction applied",
				Type:        models.OptionTypeBoolean,
				Default:     false,
			},
			{
				Name:        "dem_terrain_correction",
				Description: "Use DEM for terrain correction, otherwise only used for WVP and AOT",
				Type:        models.OptionTypeBoolean,
				Default:     true,
			},
			{
				Name:        "resolution",
				Description: "Target resolution, can be 10, 20 or 60m. 0 processes the 20 and 10m resolutions",
				Type:        models.OptionTypeInteger,
				Default:     0,
				Enum:        []interface{}{0, 10, 20, 60},
			},
		},
		Execute: runSen2Cor,
	}
}

// gippSettings is the subset of the L2A_GIPP configuration the workflow
// options control.
type gippSettings struct {
	XMLName          xml.Name `xml:"Level-2A_Ground_Image_Processing_Parameter"`
	AerosolType      string   `xml:"Atmospheric_Correction>Look_Up_Tables>Aerosol_Type"`
	MidLatitude      string   `xml:"Atmospheric_Correction>Look_Up_Tables>Mid_Latitude"`
	OzoneContent     int      `xml:"Atmospheric_Correction>Look_Up_Tables>Ozone_Content"`
	CirrusCorrection bool     `xml:"Atmospheric_Correction>Flags>Cirrus_Correction"`
	DEMDirectory     string   `xml:"Common_Section>DEM_Directory"`
	DEMReference     string   `xml:"Common_Section>DEM_Reference"`
}

// createSen2CorConfile renders the processor configuration file for this
// invocation into the processing directory.
func createSen2CorConfile(processingDir, srtmDir string, options map[string]interface{}) (string, error) {
	settings := gippSettings{
		AerosolType:      strings.ToUpper(stringOption(options, "aerosol_type", "rural")),
		MidLatitude:      strings.ToUpper(stringOption(options, "mid_latitude", "summer")),
		OzoneContent:     intOption(options, "ozone_content", 331),
		CirrusCorrection: boolOption(options, "cirrus_correction", false),
	}
	if boolOption(options, "dem_terrain_correction", true) {
		settings.DEMDirectory = srtmDir
		settings.DEMReference = srtmDownloadAddress
	} else {
		settings.DEMDirectory = "NONE"
	}

	data, err := xml.MarshalIndent(settings, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to render sen2cor configuration: %w", err)
	}
	confile := filepath.Join(processingDir, sen2corConfileName)
	if err := os.WriteFile(confile, append([]byte(xml.Header), data...), 0644); err != nil {
		return "", fmt.Errorf("failed to write sen2cor configuration: %w", err)
	}
	return confile, nil
}

// runSen2Cor invokes the L2A_Process executable against the unpacked L1C
// product and returns the produced .SAFE directory.
func runSen2Cor(params models.ExecuteParams) (string, error) {
	srtmDir := filepath.Join(params.ProcessingDir, "srtm")
	if err := os.MkdirAll(srtmDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create srtm directory: %w", err)
	}

	confile, err := createSen2CorConfile(params.ProcessingDir, srtmDir, params.Options)
	if err != nil {
		return "", err
	}

	args := []string{
		"--GIP_L2A", confile,
		"--output_dir", params.OutputDir,
	}
	if res := intOption(params.Options, "resolution", 0); res != 0 {
		args = append(args, "--resolution", fmt.Sprintf("%d", res))
	}
	args = append(args, params.ProductPath)

	cmd := exec.Command("L2A_Process", args...)
	cmd.Dir = params.ProcessingDir
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("sen2cor processing failed: %w: %s", err, strings.TrimSpace(string(output)))
	}

	produced, err := findSafeDir(params.OutputDir)
	if err != nil {
		return "", err
	}
	return produced, nil
}

// findSafeDir locates the single .SAFE directory the processor wrote.
func findSafeDir(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read plugin output directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() && strings.HasSuffix(entry.Name(), ".SAFE") {
			return filepath.Join(dir, entry.Name()), nil
		}
	}
	return "", fmt.Errorf("no .SAFE product found in %s", dir)
}

func stringOption(options map[string]interface{}, name, fallback string) string {
	if v, ok := options[name].(string); ok {
		return v
	}
	return fallback
}

func intOption(options map[string]interface{}, name string, fallback int) int {
	switch v := options[name].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return fallback
}

func boolOption(options map[string]interface{}, name string, fallback bool) bool {
	if v, ok := options[name].(bool); ok {
		return v
	}
	return fallback
}
