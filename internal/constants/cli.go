package constants

import "time"

// InterruptTimeout bounds how long the CLI waits for a second Ctrl+C
// after printing the "hit it again to exit" hint.
const InterruptTimeout = 3 * time.Second
