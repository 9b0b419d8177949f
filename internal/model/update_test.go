package model_test

import (
	"encoding/json"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"intelbrief.app/brief/internal/model"
)

var _ = Describe("Update", func() {
	It("serializes as a flat object carrying the source", func() {
		u := model.NewUpdate(model.SourceSlack, map[string]any{
			"channel": "#eng",
			"text":    "deploy done",
		})

		data, err := json.Marshal(u)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(MatchJSON(`{"source":"slack","channel":"#eng","text":"deploy done"}`))
	})

	It("restores source and fields from the flat form", func() {
		var u model.Update
		Expect(json.Unmarshal([]byte(`{"source":"gmail","subject":"hi"}`), &u)).To(Succeed())
		Expect(u.Source).To(Equal(model.SourceGmail))
		Expect(u.Get("subject")).To(Equal("hi"))
		Expect(u.Fields).NotTo(HaveKey("source"))
	})
})

var _ = Describe("Results", func() {
	var results model.Results

	BeforeEach(func() {
		results = model.Results{
			{Source: model.SourceSlack, Updates: []model.Update{
				model.NewUpdate(model.SourceSlack, nil),
				model.NewUpdate(model.SourceSlack, nil),
			}},
			{Source: model.SourceJira, Err: errors.New("boom")},
			{Source: model.SourceGmail, Updates: []model.Update{model.NewUpdate(model.SourceGmail, nil)}},
		}
	})

	It("totals updates across sources", func() {
		Expect(results.Total()).To(Equal(3))
	})

	It("reports a failed source", func() {
		Expect(results.AnyFailed()).To(BeTrue())
		Expect(model.Results{{Source: model.SourceSlack}}.AnyFailed()).To(BeFalse())
	})

	It("keeps invocation order", func() {
		Expect(results.Sources()).To(Equal([]model.Source{model.SourceSlack, model.SourceJira, model.SourceGmail}))
	})

	It("maps failed sources to empty lists", func() {
		by := results.BySource()
		Expect(by).To(HaveKey(model.SourceJira))
		Expect(by[model.SourceJira]).NotTo(BeNil())
		Expect(by[model.SourceJira]).To(BeEmpty())
		Expect(results.Counts()[model.SourceSlack]).To(Equal(2))
	})
})
