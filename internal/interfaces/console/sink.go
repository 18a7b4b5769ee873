package console

import (
	"fmt"
	"io"
	"os"
	"time"

	"mdfeed/internal/application/port"
)

type Sink struct {
	w io.Writer
}

func NewSink() port.Sink { return NewWriterSink(os.Stdout) }

// NewWriterSink writes to w instead of stdout.
func NewWriterSink(w io.Writer) *Sink { return &Sink{w: w} }

// 打印统计行：时间戳 + 内容
func (s *Sink) WriteSnapshot(ts time.Time, line string) error {
	_, err := fmt.Fprintf(s.w, "%s %s\n", ts.Format("2006-01-02 15:04:05"), line)
	return err
}

func (s *Sink) NewLine() error {
	_, err := fmt.Fprint(s.w, "\n")
	return err
}
