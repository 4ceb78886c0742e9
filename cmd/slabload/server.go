package main

import (
	"bytes"

	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"

	"github.com/funny-falcon/slabmalloc/alloc"
	"github.com/funny-falcon/slabmalloc/zone"
)

var EmptyRes = []byte("{}")

func handler(ctx *fasthttp.RequestCtx) {
	path := ctx.Path()
	logf("%s %s", ctx.Method(), path)
	switch {
	case ctx.IsGet() && bytes.Equal(path, []byte("/stats")):
		doStats(ctx)
	case ctx.IsPost() && bytes.Equal(path, []byte("/alloc")):
		doAlloc(ctx)
	case ctx.IsPost() && bytes.Equal(path, []byte("/free")):
		doFree(ctx)
	case ctx.IsPost() && bytes.Equal(path, []byte("/reclaim")):
		doReclaim(ctx)
	default:
		ctx.SetStatusCode(404)
	}
}

type PtrIn struct {
	Ptr   uint64 `json:"ptr"`
	Size  int    `json:"size"`
	Align int    `json:"align"`
}

func readBody(ctx *fasthttp.RequestCtx, in *PtrIn) bool {
	iter := jsonConfig.BorrowIterator(ctx.PostBody())
	defer jsonConfig.ReturnIterator(iter)
	iter.ReadVal(in)
	if iter.Error != nil {
		logf("bad body: %v", iter.Error)
		ctx.SetStatusCode(400)
		return false
	}
	return true
}

func errorStatus(ctx *fasthttp.RequestCtx, err error) {
	logf("%s: %v", ctx.Path(), err)
	switch {
	case errors.Is(err, zone.ErrOutOfMemory):
		ctx.SetStatusCode(fasthttp.StatusInsufficientStorage)
	case errors.Is(err, zone.ErrAddressNotOwned):
		ctx.SetStatusCode(404)
	default:
		ctx.SetStatusCode(400)
	}
	ctx.SetBodyString(err.Error())
}

func doStats(ctx *fasthttp.RequestCtx) {
	var st zone.Stats
	Heap.Do(func(alloc.Allocator) {
		st = Zone.Stats()
	})
	stream := jsonConfig.BorrowStream(nil)
	st.Encode(stream)
	ctx.SetContentType("application/json")
	ctx.SetBody(stream.Buffer())
	jsonConfig.ReturnStream(stream)
}

func doAlloc(ctx *fasthttp.RequestCtx) {
	var in PtrIn
	if !readBody(ctx, &in) {
		return
	}
	ptr, err := Heap.Alloc(in.Size, in.Align)
	if err != nil {
		errorStatus(ctx, err)
		return
	}
	stream := jsonConfig.BorrowStream(nil)
	stream.WriteObjectStart()
	stream.WriteObjectField("ptr")
	stream.WriteUint64(uint64(ptr))
	stream.WriteObjectEnd()
	ctx.SetContentType("application/json")
	ctx.SetStatusCode(201)
	ctx.SetBody(stream.Buffer())
	jsonConfig.ReturnStream(stream)
}

func doFree(ctx *fasthttp.RequestCtx) {
	var in PtrIn
	if !readBody(ctx, &in) {
		return
	}
	if err := Heap.Dealloc(alloc.Ptr(in.Ptr), in.Size, in.Align); err != nil {
		errorStatus(ctx, err)
		return
	}
	ctx.SetContentType("application/json")
	ctx.SetBody(EmptyRes)
}

func doReclaim(ctx *fasthttp.RequestCtx) {
	n := 0
	Heap.Do(func(alloc.Allocator) {
		n = Zone.Reclaim()
	})
	stream := jsonConfig.BorrowStream(nil)
	stream.WriteObjectStart()
	stream.WriteObjectField("released")
	stream.WriteInt(n)
	stream.WriteObjectEnd()
	ctx.SetContentType("application/json")
	ctx.SetBody(stream.Buffer())
	jsonConfig.ReturnStream(stream)
}
