package wstransport

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
)

// FetchStatus asks the master at addr how far the current run is.
func FetchStatus(addr string, timeout time.Duration) (StatusResponse, error) {
	var status StatusResponse

	agent := fiber.Get(toHTTPURL(addr) + StatusPath)
	agent.JSONDecoder(sonic.Unmarshal)
	if timeout > 0 {
		agent.Timeout(timeout)
	}

	if err := agent.Parse(); err != nil {
		return StatusResponse{}, fmt.Errorf("fetch status: %w", err)
	}

	code, body, errs := agent.Struct(&status)
	if len(errs) > 0 {
		return StatusResponse{}, fmt.Errorf("fetch status: %w", errors.Join(errs...))
	}
	if code != fiber.StatusOK {
		return StatusResponse{}, fmt.Errorf("fetch status: unexpected status %d: %s", code, body)
	}
	return status, nil
}

// toHTTPURL is the http counterpart of toWebSocketURL.
func toHTTPURL(addr string) string {
	u := toWebSocketURL(addr)
	if strings.HasPrefix(u, "wss://") {
		return "https://" + strings.TrimPrefix(u, "wss://")
	}
	return "http://" + strings.TrimPrefix(u, "ws://")
}
