//go:build !unix

package ffmpeg

import "os"

// No suspend primitive outside unix; pause is reported as unavailable
// instead of silently ignored.

func suspendProcess(*os.Process) error {
	return ErrPauseUnsupported
}

func resumeProcess(*os.Process) error {
	return ErrPauseUnsupported
}

func terminateProcess(p *os.Process) error {
	return p.Kill()
}
