package workflows

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckProductConsistency(t *testing.T) {
	cases := []struct {
		productType string
		reference   string
	}{
		{"S2MSI1C", "S2A_MSIL1C_20211022T062221_N0301_R048_T39GWH_20211022T064132.zip"},
		{"S2MSI2A", "S2B_MSIL2A_20211123T094019_N0301_R007_T18CVQ_20211123T123849.zip"},
		{"IW_SLC__1S", "S1B_IW_SLC__1SDV_20211125T040332_20211125T040401_029739_038CB1_1A18.zip"},
		{"OL_1_EFR___", "S3A_OL_1_EFR____20211201T094019_20211201T094319_0179_079_250_2160"},
		{"L2__NO2___", "S5P_OFFL_L2__NO2____20211201T094019_20211201T112148_21436_02_020301"},
	}
	for _, tc := range cases {
		err := CheckProductConsistency(tc.productType, tc.reference, "wf")
		assert.NoError(t, err, "reference %s should match %s", tc.reference, tc.productType)
	}
}

func TestCheckProductConsistency_WrongProduct(t *testing.T) {
	cases := []struct {
		productType string
		reference   string
	}{
		{"S2MSI1C", "S2B_MSIL2A_20211123T094019_N0301_R007_T18CVQ_20211123T123849.zip"},
		{"S2MSI2A", "S2A_MSIL1C_20211022T062221_N0301_R048_T39GWH_20211022T064132.zip"},
		{"IW_SLC__1S", "S1B_EW_SLC__1SDV_20211125T040332_20211125T040401_029739_038CB1_1A18.zip"},
		{"S2MSI1C", "S1A_IW_GRDH_1SDV_20211125T040332_20211125T040401_029739_038CB1_1A18"},
	}
	for _, tc := range cases {
		err := CheckProductConsistency(tc.productType, tc.reference, "wf")
		if assert.Error(t, err) {
			assert.Contains(t, err.Error(), "input product reference")
		}
	}
}

func TestCheckProductConsistency_UnknownProductType(t *testing.T) {
	err := CheckProductConsistency("S2LSI1C", "S2A_MSIL1C_20211022T062221_N0301_R048_T39GWH_20211022T064132.zip", "wf")
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), "product type not recognized")
	}

	var requestErr *RequestError
	assert.ErrorAs(t, err, &requestErr)
}
