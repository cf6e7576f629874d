package window

// Key codes passed to the key-down callback. They match GLFW key codes, which are ASCII
// for printable keys.
// Reference: https://pkg.go.dev/github.com/go-gl/glfw/v3.3/glfw#Key
const (
	KeySpace  = 32  // Spacebar (ASCII)
	KeyH      = 72  // H key (ASCII)
	KeyL      = 76  // L key (ASCII)
	KeyX      = 88  // X key (ASCII)
	KeyEscape = 256 // Escape key (GLFW), always closes the window
)
