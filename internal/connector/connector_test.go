package connector_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"intelbrief.app/brief/common/logger"
	"intelbrief.app/brief/internal/connector"
	"intelbrief.app/brief/internal/domain"
	"intelbrief.app/brief/internal/model"
)

var _ = Describe("Skip", func() {
	var buf *bytes.Buffer

	BeforeEach(func() {
		buf = &bytes.Buffer{}
		previous := slog.Default()
		slog.SetDefault(slog.New(logger.NewTraceHandler(slog.NewTextHandler(buf, nil))))
		DeferCleanup(func() { slog.SetDefault(previous) })
	})

	It("tags the record with the source and operation", func() {
		err := connector.Skip(context.Background(), model.SourceSlack, "history", errors.New("not_in_channel"), "channel", "eng")

		Expect(domain.KindOf(err)).To(Equal(domain.KindTransient))
		Expect(buf.String()).To(ContainSubstring("source=slack"))
		Expect(buf.String()).To(ContainSubstring("op=history"))
		Expect(buf.String()).To(ContainSubstring("channel=eng"))
	})

	It("shortens long error bodies in the log but keeps the full error", func() {
		body := strings.Repeat("x", 5000)
		err := connector.Skip(context.Background(), model.SourceGmail, "get_message", errors.New(body))

		Expect(buf.String()).NotTo(ContainSubstring(body))
		Expect(buf.String()).To(ContainSubstring(strings.Repeat("x", connector.MaxLoggedErrorLen) + "..."))
		Expect(err.Error()).To(ContainSubstring(body))
	})
})
