package installer

import (
	"bufio"
	"context"
	"io"
	"strings"
)

// affirmative answers, in English and Spanish.
var affirmative = map[string]bool{
	"y":   true,
	"yes": true,
	"s":   true,
	"si":  true,
}

// Confirm reads a single line and reports whether it is an affirmative answer.
// EOF or a read error counts as a refusal. The read is abandoned as soon as
// ctx is done, in which case the context error is returned.
func Confirm(ctx context.Context, in io.Reader) (bool, error) {
	answer := make(chan string, 1)
	go func() {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && line == "" {
			answer <- ""
			return
		}
		answer <- line
	}()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case line := <-answer:
		return affirmative[strings.ToLower(strings.TrimSpace(line))], nil
	}
}
