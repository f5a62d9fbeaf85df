package clip

import (
	"fmt"
	"strings"

	"ai-media-hub-service/internal/cache"
	"ai-media-hub-service/internal/observability/metrics"
	"ai-media-hub-service/internal/service/synth"
	"ai-media-hub-service/internal/storage"
)

// Factory builds clips from descriptors and wires them to their backends.
type Factory struct {
	Store   storage.ObjectStore
	Extract ExtractFunc
	TTS     Pool
	Cosy    Pool
	Cache   cache.Store
	Metrics *metrics.Metrics
}

func (f *Factory) metrics() *metrics.Metrics {
	if f.Metrics != nil {
		return f.Metrics
	}
	return metrics.DefaultMetrics
}

// FromPath builds the clip a playback path names:
//
//	[...]                  composite descriptor list (also "type=cp,[...]")
//	{type=tts,...}suffix   speech synthesis
//	{type=cosy,...}suffix  voice-clone synthesis
//	{bucket=b}key          object storage recording
func (f *Factory) FromPath(path string) (Task, error) {
	if strings.HasPrefix(path, "[") || strings.HasPrefix(path, "type=cp,") {
		return f.NewComposite(path)
	}
	vars, err := ParseVars(path)
	if err != nil {
		return nil, err
	}
	switch vars.String("type") {
	case string(synth.KindTTS), string(synth.KindCosy):
		kind := synth.Kind(vars.String("type"))
		req, err := ParseSynthesisRequest(kind, path)
		if err != nil {
			return nil, err
		}
		return f.synthesis(req, nil)
	}
	if _, ok := vars.Get("bucket"); ok {
		if f.Store == nil {
			return nil, fmt.Errorf("no object store configured for %q", path)
		}
		c, err := ParseObjectClip(path, f.Store, f.Extract)
		if err != nil {
			return nil, err
		}
		c.metrics = f.metrics()
		return c, nil
	}
	return nil, fmt.Errorf("unsupported clip path %q", path)
}

// NewComposite parses path into a composite clip.
func (f *Factory) NewComposite(path string) (*Composite, error) {
	descs, err := ParseDescriptors(path)
	if err != nil {
		return nil, err
	}
	return &Composite{descs: descs, factory: f, metrics: f.metrics()}, nil
}

func (f *Factory) synthesis(req SynthesisRequest, configure func(*synth.Params)) (Task, error) {
	pool := f.TTS
	if req.Kind == synth.KindCosy {
		pool = f.Cosy
	}
	if pool == nil {
		return nil, fmt.Errorf("no %s accounts configured", req.Kind)
	}
	c := NewSynthesisClip(req, pool, configure)
	c.metrics = f.metrics()
	return WithCache(c, f.Cache), nil
}

// forDescriptor maps a composite element to its clip. ok is false for
// elements that are skipped.
func (f *Factory) forDescriptor(d Descriptor) (Task, bool) {
	if d.Bucket != nil {
		if f.Store == nil {
			return nil, false
		}
		var object string
		if d.Object != nil {
			object = *d.Object
		}
		c := NewObjectClip(*d.Bucket, object, f.Store, f.Extract)
		c.metrics = f.metrics()
		return c, true
	}
	if d.Type == nil {
		return nil, false
	}

	var voice, text string
	if d.Voice != nil {
		voice = *d.Voice
	}
	if d.Text != nil {
		text = UnescapeUnicode(*d.Text)
	}

	var (
		task Task
		err  error
	)
	switch synth.Kind(*d.Type) {
	case synth.KindTTS:
		task, err = f.synthesis(NewSynthesisRequest(synth.KindTTS, voice, text), nil)
	case synth.KindCosy:
		task, err = f.synthesis(NewSynthesisRequest(synth.KindCosy, voice, text), compositeCosy)
	default:
		return nil, false
	}
	if err != nil {
		return nil, false
	}
	return task, true
}
