package cmd

import (
	"fmt"
	"sync"
)

// ExitMocks records calls to fatal functions, which do not exit during test
type ExitMocks struct {
	mu           sync.Mutex
	exitStatuses []int
	fatalCalls   int
	messages     []string
}

func (m *ExitMocks) Fatalln(v ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fatalCalls++
	m.messages = append(m.messages, fmt.Sprintln(v...))
}

func (m *ExitMocks) Fatalf(format string, v ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fatalCalls++
	m.messages = append(m.messages, fmt.Sprintf(format, v...))
}

func (m *ExitMocks) Exit(code int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exitStatuses = append(m.exitStatuses, code)
}

func (m *ExitMocks) fatals() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fatalCalls
}

func (m *ExitMocks) exits() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.exitStatuses...)
}

func NewExitMocks() *ExitMocks {
	exitMocks := ExitMocks{
		exitStatuses: make([]int, 0),
	}
	return &exitMocks
}

func MakeExitMock(m *ExitMocks) func(int) {
	return func(code int) {
		m.Exit(code)
	}
}

var exitMocks *ExitMocks

func setupExitMocks() func() {
	exitMocks = NewExitMocks()
	savedExit, savedFatalln, savedFatalf := osExit, logFatalln, logFatalf
	osExit = MakeExitMock(exitMocks)
	logFatalln = exitMocks.Fatalln
	logFatalf = exitMocks.Fatalf
	return func() {
		osExit, logFatalln, logFatalf = savedExit, savedFatalln, savedFatalf
	}
}
