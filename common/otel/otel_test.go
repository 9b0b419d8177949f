package otel

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"intelbrief.app/brief/core/config"
)

var _ = Describe("Setup", func() {
	It("returns a no-op telemetry when no endpoint is configured", func() {
		tel, err := Setup(context.Background(), config.OTelConfig{})
		Expect(err).NotTo(HaveOccurred())
		Expect(tel).NotTo(BeNil())
		Expect(tel.Shutdown(context.Background())).To(Succeed())
	})

	It("tolerates shutdown on a nil telemetry", func() {
		var tel *Telemetry
		Expect(tel.Shutdown(context.Background())).To(Succeed())
	})
})

var _ = Describe("parseHeaders", func() {
	It("splits comma separated pairs", func() {
		Expect(parseHeaders("authorization=Bearer x, x-team = data")).To(Equal(map[string]string{
			"authorization": "Bearer x",
			"x-team":        "data",
		}))
	})

	It("ignores malformed pairs", func() {
		Expect(parseHeaders("novalue,a=b")).To(Equal(map[string]string{"a": "b"}))
	})

	It("returns an empty map for an empty string", func() {
		Expect(parseHeaders("")).To(BeEmpty())
	})
})
