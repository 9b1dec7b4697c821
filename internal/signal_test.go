package dispatch

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Subscribing to signals", func() {
	var g *geometry

	BeforeEach(func() {
		g = newGeometry(nil)
	})

	It("passes emitted arguments as values", func() {
		p := g.newPoint(0, 0)
		var got [][]Value
		handle, err := g.engine.Subscribe(g.ctx, nil, &p, "moved", func(ctx context.Context, args []Value) error {
			got = append(got, args)
			return nil
		})
		Expect(err).To(BeNil())
		Expect(handle.Name()).To(Equal("Point.moved"))
		Expect(handle.Connected()).To(BeTrue())

		_, err = g.call(p, "move", Int(1), Int(2))
		Expect(err).To(BeNil())
		_, err = g.call(p, "move", Int(3))
		Expect(err).To(BeNil())

		Expect(got).To(Equal([][]Value{{Int(1), Int(2)}, {Int(3), Int(0)}}))
	})

	It("stops delivering after a disconnect", func() {
		p := g.newPoint(0, 0)
		calls := 0
		handle, err := g.engine.Subscribe(g.ctx, g.Point, &p, "moved", func(ctx context.Context, args []Value) error {
			calls++
			return nil
		})
		Expect(err).To(BeNil())

		handle.Disconnect()
		handle.Disconnect()
		Expect(handle.Connected()).To(BeFalse())

		_, err = g.call(p, "move", Int(1))
		Expect(err).To(BeNil())
		Expect(calls).To(Equal(0))
	})

	It("hands handler errors back to the emitter", func() {
		p := g.newPoint(0, 0)
		_, err := g.engine.Subscribe(g.ctx, nil, &p, "moved", func(ctx context.Context, args []Value) error {
			return errors.New("handler failed")
		})
		Expect(err).To(BeNil())

		_, err = g.call(p, "move", Int(1))
		Expect(err).To(MatchError("error while calling Point.move: handler failed"))
	})

	It("refuses members that are not signals", func() {
		p := g.newPoint(0, 0)
		_, err := g.engine.Subscribe(g.ctx, nil, &p, "move", func(ctx context.Context, args []Value) error { return nil })
		Expect(err).To(MatchError(ErrTypeMismatch))
		Expect(err.Error()).To(Equal("Point.move is not a signal"))
	})

	It("refuses unknown signals", func() {
		p := g.newPoint(0, 0)
		_, err := g.engine.Subscribe(g.ctx, nil, &p, "rotated", func(ctx context.Context, args []Value) error { return nil })
		Expect(err).To(MatchError(ErrUnknownMethod))
	})

	It("needs an instance for instance signals", func() {
		_, err := g.engine.Subscribe(g.ctx, g.Point, nil, "moved", func(ctx context.Context, args []Value) error { return nil })
		Expect(err).To(HaveOccurred())
	})

	It("refuses destroyed instances", func() {
		p := g.newPoint(0, 0)
		_, err := g.call(p, "destroy")
		Expect(err).To(BeNil())

		_, err = g.engine.Subscribe(g.ctx, nil, &p, "moved", func(ctx context.Context, args []Value) error { return nil })
		Expect(err).To(MatchError(ErrDestroyed))
	})

	It("cannot be called like a method", func() {
		_, err := g.call(g.newPoint(0, 0), "moved", Int(1), Int(2))
		Expect(err).To(MatchError(ErrNoMatch))
		Expect(err.Error()).To(ContainSubstring("is a signal, subscribe to it instead"))
	})
})
