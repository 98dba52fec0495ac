package transport

// LoggingTransport writes every update to the debug log.
type LoggingTransport struct{}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	log.Infof("Transport: Using LoggingTransport")
	return &LoggingTransport{}
}

// Send logs the update. It never fails.
func (lt *LoggingTransport) Send(u *ClockUpdate) error {
	log.Debugf("clock #%d pts=%dms state=%s queue=%d decoded=%d bins=%d",
		u.Seq, u.PTS, u.State, u.QueueLen, u.Decoded, len(u.Spectrum))
	return nil
}

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	log.Debugf("LoggingTransport: Close called.")
	return nil
}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)
