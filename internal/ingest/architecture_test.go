package ingest

import (
	"compliancedash/testutil"
	"testing"
)

func TestParsingStaysStorageFree(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.AnyOf(testutil.CoreImportForbidden, testutil.InfraImportForbidden), "ingest only converts workbook rows")
}
