package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/CiaranWoodward/roomhub/client"
	"github.com/CiaranWoodward/roomhub/protocol"
	readline "github.com/chzyer/readline"
)

// Console keeps incoming messages from breaking the line being typed
type console struct {
	rl *readline.Instance
	mu sync.Mutex
}

func newConsole(prompt string) (*console, error) {
	rl, err := readline.New(prompt)
	if err != nil {
		return nil, err
	}
	return &console{rl: rl}, nil
}

func (ui *console) Close() { ui.rl.Close() }

func (ui *console) println(msg string) {
	ui.mu.Lock()
	defer ui.mu.Unlock()
	ui.rl.Stdout().Write([]byte("\r" + msg + "\n"))
	ui.rl.Refresh()
}

// Ask until a non-blank answer is given
func (ui *console) ask(question string) (string, error) {
	ui.rl.SetPrompt(question)
	defer ui.rl.SetPrompt("> ")
	for {
		line, err := ui.rl.Readline()
		if err != nil {
			return "", err
		}
		if line = strings.TrimSpace(line); line != "" {
			return line, nil
		}
		ui.println("Username cannot be empty.")
	}
}

// Feed typed lines to input until EOF, Ctrl-C or done. input is closed on return.
func (ui *console) readInto(input chan<- string, done <-chan struct{}) {
	defer close(input)
	for {
		line, err := ui.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				ui.println("Shutting down.")
			}
			return
		}
		select {
		case input <- line:
		case <-done:
			return
		}
	}
}

// Print every received message until the session closes the channel
func (ui *console) printMessages(messages <-chan client.Message) {
	for m := range messages {
		ui.println(format(m))
	}
}

func format(m client.Message) string {
	if m.Text != "" {
		return m.Text
	}
	f := m.Frame
	switch f.Header {
	case protocol.HeaderWhisper:
		return fmt.Sprintf("\n[WHISPER] %s\n", f.Body)
	case protocol.HeaderExit:
		return "Goodbye!"
	}
	s := m.String()
	if m.Hop != "" {
		s += fmt.Sprintf("\nHopping to %s...", m.Hop)
	}
	return s
}
