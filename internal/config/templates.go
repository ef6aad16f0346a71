package config

import (
	"fmt"
	"os"
)

func Template() string {
	return codetangoTemplate
}

func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(codetangoTemplate), 0o600)
}

const codetangoTemplate = `# codetango run configuration. Flags and CODETANGO_* environment
# variables override these values.

socket = "/tmp/codetango.sock"

# seconds to wait for both programs to connect
timeout = 60

# time between SIGTERM and SIGKILL during cleanup
grace = "500ms"

verbose = false

# fail the run when variables differ at any barrier, not only when a
# barrier is unreached
strict = false

# admin_addr = "127.0.0.1:7070"
# log_level = "info"

# program1 = ["python3", "reference.py"]
# program2 = ["./candidate"]

receive_timeout = "1s"
identify_timeout = "5s"
write_timeout = "5s"
max_message_size = 1048576
`
