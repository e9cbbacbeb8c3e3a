// services/display/console.go
package display

import "io"

// Console mirrors the status screen onto a byte stream: a UART on the jig,
// stdout on the host simulator.
type Console struct {
	w io.Writer
}

func NewConsole(w io.Writer) *Console { return &Console{w: w} }

func (c *Console) ShowLines(lines ...string) error {
	buf := make([]byte, 0, 64)
	buf = append(buf, "[jig] "...)
	for i, ln := range lines {
		if i > 0 {
			buf = append(buf, " | "...)
		}
		buf = append(buf, ln...)
	}
	buf = append(buf, '\n')
	_, err := c.w.Write(buf)
	return err
}
