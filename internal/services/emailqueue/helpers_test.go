package emailqueue

import "github.com/aethermarket/coordinator/internal/logging"

func testLogger() *logging.Logger {
	return logging.NewDefault("emailqueue-test")
}
