package domain_test

import (
	"testing"

	"calendarcore/testutil"
)

// TestDomainImportsStdlibOnly keeps the meeting model free of module-internal
// and third-party dependencies so every backend and adapter can depend on it.
func TestDomainImportsStdlibOnly(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.AnyOf(testutil.ThirdPartyImport, testutil.ModuleImport),
		"domain must only use the standard library")
}
