// Package sqlite provides dependency boundary tests for the sqlite backend.
package sqlite

import (
	"testing"

	"calendarcore/testutil"
)

func TestImportsStayInsidePersistence(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.ModuleImportOutside(
		"calendarcore/pkg/domain",
		"calendarcore/internal/infra/persistence/memory",
	), "durable backends wrap the memory store only")
}
