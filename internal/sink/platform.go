package sink

import (
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// IsWSL checks if the current environment is Windows Subsystem for Linux
func IsWSL() bool {
	return detectWSLFromData(readProcVersion(), os.Getenv("WSL_DISTRO_NAME"))
}

func detectWSLFromData(procVersion, wslEnv string) bool {
	if wslEnv != "" {
		slog.Debug("WSL detected via environment variable", "distro", wslEnv)
		return true
	}
	procLower := strings.ToLower(procVersion)
	if strings.Contains(procLower, "microsoft") || strings.Contains(procLower, "wsl") {
		slog.Debug("WSL detected via /proc/version", "proc_version_snippet", truncateString(procVersion, 50))
		return true
	}
	return false
}

func readProcVersion() string {
	content, err := os.ReadFile("/proc/version")
	if err != nil {
		slog.Debug("failed to read /proc/version", "error", err)
		return ""
	}
	return string(content)
}

// CommandExists checks if a command is on PATH
func CommandExists(command string) bool {
	if command == "" {
		return false
	}
	_, err := exec.LookPath(command)
	return err == nil
}

// rawCommands in order of preference
var rawCommands = []string{
	"paplay", // PulseAudio / PipeWire
	"pacat",
	"aplay", // ALSA
	"ffplay",
}

func preferredCommandWithChecker(commandExists func(string) bool) string {
	for _, cmd := range rawCommands {
		if commandExists(cmd) {
			slog.Debug("preferred system command found", "command", cmd)
			return cmd
		}
	}
	return ""
}

// detectOptimalSinkWithChecker prefers a system command under WSL, where device
// output through malgo crackles, and malgo everywhere else
func detectOptimalSinkWithChecker(isWSL bool, commandExists func(string) bool) string {
	if isWSL {
		if preferredCommandWithChecker(commandExists) != "" {
			return TypeCommand
		}
		slog.Warn("no system audio commands found in WSL, falling back to malgo (may have crackling)")
	}
	return TypeMalgo
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
