package mocks

// MockLogger 测试用的空实现logger
type MockLogger struct{}

func NewMockLogger() *MockLogger { return &MockLogger{} }

func (m *MockLogger) Debug(format string, args ...interface{}) {}
func (m *MockLogger) Info(format string, args ...interface{})  {}
func (m *MockLogger) Warn(format string, args ...interface{})  {}
func (m *MockLogger) Error(format string, args ...interface{}) {}
func (m *MockLogger) Fatal(format string, args ...interface{}) {}
