package main

import (
	"archive/zip"
	"io"
	"os"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/funny-falcon/slabmalloc/alloc"
)

var jsonConfig = jsoniter.Config{
	OnlyTaggedField: true,
	CaseSensitive:   true,
}.Froze()

type OpIn struct {
	Op    string `json:"op"`
	Id    int64  `json:"id"`
	Size  int    `json:"size"`
	Align int    `json:"align"`
}

type Result struct {
	Allocs        int
	Frees         int
	Failed        int
	Unknown       int
	Live          int
	LiveBytes     int
	PeakLiveBytes int
}

type object struct {
	ptr         alloc.Ptr
	size, align int
}

// Replayer applies trace operations to an allocator. Ids name objects across
// every trace fed to the same Replayer.
type Replayer struct {
	A alloc.Allocator
	Result

	live map[int64]object
}

func NewReplayer(a alloc.Allocator) *Replayer {
	return &Replayer{A: a, live: make(map[int64]object)}
}

// Replay streams one trace document from r.
func (rp *Replayer) Replay(r io.Reader) error {
	iter := jsoniter.Parse(jsonConfig, r, 64*1024)
	if attr := iter.ReadObject(); attr != "ops" {
		if iter.Error != nil {
			return errors.Wrap(iter.Error, "trace")
		}
		return errors.Errorf("trace: no ops, got %q", attr)
	}
	for iter.ReadArray() {
		var op OpIn
		iter.ReadVal(&op)
		if iter.Error != nil {
			break
		}
		rp.Apply(&op)
	}
	if iter.Error != nil {
		return errors.Wrap(iter.Error, "trace")
	}
	return nil
}

// Apply performs one operation. Failures are counted, not returned: an
// exhausted zone is a legitimate outcome of a trace.
func (rp *Replayer) Apply(op *OpIn) {
	switch op.Op {
	case "alloc":
		if _, dup := rp.live[op.Id]; dup {
			logf("alloc of live id %d", op.Id)
			rp.Unknown++
			return
		}
		ptr, err := rp.A.Alloc(op.Size, op.Align)
		if err != nil {
			logf("alloc %d: %v", op.Id, err)
			rp.Failed++
			return
		}
		rp.live[op.Id] = object{ptr: ptr, size: op.Size, align: op.Align}
		rp.Allocs++
		rp.Live++
		rp.LiveBytes += op.Size
		if rp.LiveBytes > rp.PeakLiveBytes {
			rp.PeakLiveBytes = rp.LiveBytes
		}
	case "free":
		obj, ok := rp.live[op.Id]
		if !ok {
			logf("free of unknown id %d", op.Id)
			rp.Unknown++
			return
		}
		delete(rp.live, op.Id)
		rp.Live--
		rp.LiveBytes -= obj.size
		if err := rp.A.Dealloc(obj.ptr, obj.size, obj.align); err != nil {
			logf("free %d: %v", op.Id, err)
			rp.Failed++
			return
		}
		rp.Frees++
	default:
		logf("unknown op %q", op.Op)
		rp.Unknown++
	}
}

// Load replays the trace at path against Heap. A zip archive is replayed
// file by file in archive order.
func Load(path string) (Result, error) {
	rp := NewReplayer(&Heap)
	if strings.HasSuffix(path, ".zip") {
		rdr, err := zip.OpenReader(path)
		if err != nil {
			return Result{}, errors.Wrap(err, "trace")
		}
		defer rdr.Close()
		for _, f := range rdr.File {
			err := func() error {
				rc, err := f.Open()
				if err != nil {
					return err
				}
				defer rc.Close()
				return rp.Replay(rc)
			}()
			if err != nil {
				return rp.Result, errors.Wrapf(err, "trace %s", f.Name)
			}
		}
		return rp.Result, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return Result{}, errors.Wrap(err, "trace")
	}
	defer f.Close()
	err = rp.Replay(f)
	return rp.Result, err
}
