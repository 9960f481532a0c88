package cabin

import "errors"

// ErrNoAudioProducer is returned by Create when the target has no live audio producer to bridge.
var ErrNoAudioProducer = errors.New("translation cabin: target has no audio producer")
