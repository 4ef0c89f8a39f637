package tolerance

import (
	"os"
	"testing"

	"circuitsync/internal/logging"
)

func TestMain(m *testing.M) {
	logging.ConfigureTests()
	os.Exit(m.Run())
}
