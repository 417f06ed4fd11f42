package workflows

import (
	"fmt"
	"regexp"
	"strings"
)

// productTypePatterns maps every recognized mission/product-type code to the
// regex family its product names must match. The reference naming convention
// encodes mission and product type in the filename stem.
var productTypePatterns = map[string]*regexp.Regexp{
	// Sentinel-1
	"IW_SLC__1S": regexp.MustCompile(`^S1[AB_]_IW_SLC__1S`),
	"IW_GRDH_1S": regexp.MustCompile(`^S1[AB_]_IW_GRDH_1S`),
	"IW_RAW__0S": regexp.MustCompile(`^S1[AB_]_IW_RAW__0S`),
	"EW_GRDM_1S": regexp.MustCompile(`^S1[AB_]_EW_GRDM_1S`),

	// Sentinel-2
	"S2MSI1C": regexp.MustCompile(`^S2[AB_]_MSIL1C`),
	"S2MSI2A": regexp.MustCompile(`^S2[AB_]_MSIL2A`),

	// Sentinel-3
	"OL_1_EFR___": regexp.MustCompile(`^S3[AB_]_OL_1_EFR___`),
	"OL_2_LFR___": regexp.MustCompile(`^S3[AB_]_OL_2_LFR___`),
	"SL_1_RBT___": regexp.MustCompile(`^S3[AB_]_SL_1_RBT___`),
	"SR_2_LAN___": regexp.MustCompile(`^S3[AB_]_SR_2_LAN___`),

	// Sentinel-5P
	"L1B_RA_BD1": regexp.MustCompile(`^S5P_(OFFL|OPER|NRTI)_L1B_RA_BD1`),
	"L2__NO2___": regexp.MustCompile(`^S5P_(OFFL|OPER|NRTI)_L2__NO2___`),
	"L2__CH4___": regexp.MustCompile(`^S5P_(OFFL|OPER|NRTI)_L2__CH4___`),
	"L2__O3____": regexp.MustCompile(`^S5P_(OFFL|OPER|NRTI)_L2__O3____`),
}

// KnownProductType reports whether code belongs to the closed set of
// mission/product-type codes.
func KnownProductType(code string) bool {
	_, ok := productTypePatterns[code]
	return ok
}

// CheckProductConsistency verifies that the product reference name matches
// the naming convention of the workflow's input product type.
func CheckProductConsistency(productType, reference, workflowID string) error {
	pattern, ok := productTypePatterns[productType]
	if !ok {
		return &RequestError{Message: fmt.Sprintf(
			"product type not recognized: %q declared by workflow %q", productType, workflowID)}
	}
	name := strings.TrimSuffix(reference, ".zip")
	if !pattern.MatchString(name) {
		return &RequestError{Message: fmt.Sprintf(
			"input product reference %q does not comply with the naming convention of product type %q accepted by workflow %q",
			reference, productType, workflowID)}
	}
	return nil
}
