package v1

import (
	"encoding/base64"
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"k8s.io/apimachinery/pkg/types"

	"github.com/amitk8s/pod-cpu-mutator/pkg/policy"
)

var _ = Describe("Response codec", func() {
	uid := types.UID("review-uid")

	marshalResponse := func(review any) map[string]any {
		raw, err := json.Marshal(review)
		Expect(err).NotTo(HaveOccurred())
		var doc map[string]any
		Expect(json.Unmarshal(raw, &doc)).To(Succeed())
		response, ok := doc["response"].(map[string]any)
		Expect(ok).To(BeTrue())
		return response
	}

	Describe("NewMutationReview", func() {
		It("should carry a base64 JSONPatch when operations are present", func() {
			patch := []policy.PatchOperation{
				{Op: "add", Path: "/spec/containers/0/resources", Value: map[string]any{
					"requests": map[string]any{"cpu": "500m"},
				}},
			}

			review, err := NewMutationReview(uid, patch)
			Expect(err).NotTo(HaveOccurred())
			Expect(review.APIVersion).To(Equal("admission.k8s.io/v1"))
			Expect(review.Kind).To(Equal("AdmissionReview"))

			response := marshalResponse(review)
			Expect(response["uid"]).To(Equal("review-uid"))
			Expect(response["allowed"]).To(BeTrue())
			Expect(response["patchType"]).To(Equal("JSONPatch"))

			decoded, err := base64.StdEncoding.DecodeString(response["patch"].(string))
			Expect(err).NotTo(HaveOccurred())
			var ops []policy.PatchOperation
			Expect(json.Unmarshal(decoded, &ops)).To(Succeed())
			Expect(ops).To(HaveLen(1))
			Expect(ops[0].Path).To(Equal("/spec/containers/0/resources"))
		})

		It("should omit the patch fields entirely when no operations are present", func() {
			review, err := NewMutationReview(uid, nil)
			Expect(err).NotTo(HaveOccurred())

			response := marshalResponse(review)
			Expect(response["allowed"]).To(BeTrue())
			Expect(response).NotTo(HaveKey("patch"))
			Expect(response).NotTo(HaveKey("patchType"))
		})
	})

	Describe("NewValidationReview", func() {
		It("should carry the message in the status field", func() {
			review := NewValidationReview(uid, false, "Deletion blocked")

			response := marshalResponse(review)
			Expect(response["allowed"]).To(BeFalse())
			status, ok := response["status"].(map[string]any)
			Expect(ok).To(BeTrue())
			Expect(status["message"]).To(Equal("Deletion blocked"))
		})

		It("should omit the status field when the message is empty", func() {
			review := NewValidationReview(uid, true, "")

			response := marshalResponse(review)
			Expect(response["allowed"]).To(BeTrue())
			Expect(response).NotTo(HaveKey("status"))
		})
	})
})
