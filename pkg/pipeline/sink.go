package pipeline

import "context"

// Sink consumes run results, typically writing them out.
type Sink interface {
	Write(Records) error
	Close() error
}

// RunTo runs the pipeline and writes the tabulated result to sink. The sink
// is always closed; a Close error is returned when nothing else failed.
func RunTo(ctx context.Context, p *Pipeline, exclude []string, sink Sink) (err error) {
	defer func() {
		if cerr := sink.Close(); err == nil {
			err = cerr
		}
	}()
	res, err := p.Run(ctx, exclude)
	if err != nil {
		return err
	}
	return sink.Write(Tabulate(res))
}
