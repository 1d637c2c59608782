package v1

import (
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	admissionv1 "k8s.io/api/admission/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"

	"github.com/amitk8s/pod-cpu-mutator/pkg/kubernetes/replicaset"
	"github.com/amitk8s/pod-cpu-mutator/pkg/policy"
)

var _ = Describe("PodValidationWebhook", func() {
	var (
		stats     *stubStats
		ginEngine *gin.Engine
	)

	limits := policy.DeletionLimits{
		CPUThresholdMillicores:    2000,
		MinPodsWithNodeSelector:   2,
		RequiredNodeSelectorKey:   "node-type",
		RequiredNodeSelectorValue: "on_demand",
	}

	newReplicaSetPod := func(selector map[string]string) *corev1.Pod {
		return &corev1.Pod{
			ObjectMeta: metav1.ObjectMeta{
				Name:      "web-7d4b9c8f6-abcde",
				Namespace: "default",
				OwnerReferences: []metav1.OwnerReference{
					{Kind: "ReplicaSet", Name: "web-7d4b9c8f6"},
				},
			},
			Spec: corev1.PodSpec{
				NodeSelector: selector,
			},
		}
	}

	BeforeEach(func() {
		stats = &stubStats{}
		webhook := NewPodValidationWebhook(stats, limits, 5*time.Second, zap.NewNop())
		gin.SetMode(gin.TestMode)
		ginEngine = gin.New()
		ginEngine.POST("/webhook", webhook.Handle)
	})

	Describe("Handle", func() {
		It("should deny deletion when CPU would drop below the threshold", func() {
			stats.cpuSum = 900
			stats.selectorCount = 3

			admissionReview := createPodAdmissionReview(newReplicaSetPod(nil), admissionv1.Delete)
			response := sendWebhookRequest(ginEngine, admissionReview)

			Expect(response.Response.Allowed).To(BeFalse())
			Expect(response.Response.UID).To(Equal(admissionReview.Request.UID))
			Expect(response.Response.Result.Message).To(Equal(
				"Deletion blocked: Total CPU would drop to 900m, below threshold of 2000m"))
		})

		It("should deny deletion when the selector count would drop below the minimum", func() {
			stats.cpuSum = 2500
			stats.selectorCount = 2

			pod := newReplicaSetPod(map[string]string{"node-type": "on_demand"})
			admissionReview := createPodAdmissionReview(pod, admissionv1.Delete)
			response := sendWebhookRequest(ginEngine, admissionReview)

			Expect(response.Response.Allowed).To(BeFalse())
			Expect(response.Response.Result.Message).To(Equal(
				"Deletion blocked: Only 1 pods would have node-type=on_demand, below minimum of 2"))
		})

		It("should allow deletion when both invariants hold", func() {
			stats.cpuSum = 2200
			stats.selectorCount = 3

			admissionReview := createPodAdmissionReview(newReplicaSetPod(nil), admissionv1.Delete)
			response := sendWebhookRequest(ginEngine, admissionReview)

			Expect(response.Response.Allowed).To(BeTrue())
			Expect(response.Response.Result.Message).To(Equal(
				"Deletion allowed: CPU=2200m (>=2000m), node_selector_pods=3 (>=2)"))
		})

		It("should allow deletion of a pod with no ReplicaSet owner", func() {
			pod := &corev1.Pod{
				ObjectMeta: metav1.ObjectMeta{
					Name:      "standalone-pod",
					Namespace: "default",
				},
			}

			admissionReview := createPodAdmissionReview(pod, admissionv1.Delete)
			response := sendWebhookRequest(ginEngine, admissionReview)

			Expect(response.Response.Allowed).To(BeTrue())
			Expect(response.Response.Result.Message).To(Equal("Pod is not part of a ReplicaSet"))
		})

		It("should fail open when the CPU query fails", func() {
			stats.cpuErr = replicaset.ErrClientUnavailable

			admissionReview := createPodAdmissionReview(newReplicaSetPod(nil), admissionv1.Delete)
			response := sendWebhookRequest(ginEngine, admissionReview)

			Expect(response.Response.Allowed).To(BeTrue())
			Expect(response.Response.Result.Message).To(Equal(
				"Error occurred during validation, allowing deletion"))
		})

		It("should fail open when the selector query fails", func() {
			stats.cpuSum = 2500
			stats.selectorErr = replicaset.ErrClientUnavailable

			admissionReview := createPodAdmissionReview(newReplicaSetPod(nil), admissionv1.Delete)
			response := sendWebhookRequest(ginEngine, admissionReview)

			Expect(response.Response.Allowed).To(BeTrue())
			Expect(response.Response.Result.Message).To(Equal(
				"Error occurred during validation, allowing deletion"))
		})

		It("should fall back to the object payload when oldObject is absent", func() {
			stats.cpuSum = 2200
			stats.selectorCount = 3

			admissionReview := createPodAdmissionReview(newReplicaSetPod(nil), admissionv1.Delete)
			admissionReview.Request.Object = admissionReview.Request.OldObject
			admissionReview.Request.OldObject = runtime.RawExtension{}

			response := sendWebhookRequest(ginEngine, admissionReview)

			Expect(response.Response.Allowed).To(BeTrue())
			Expect(response.Response.Result.Message).To(ContainSubstring("Deletion allowed"))
		})

		It("should allow a non-DELETE operation with no message", func() {
			admissionReview := createPodAdmissionReview(newReplicaSetPod(nil), admissionv1.Create)
			response := sendWebhookRequest(ginEngine, admissionReview)

			Expect(response.Response.Allowed).To(BeTrue())
			Expect(response.Response.Result).To(BeNil())
		})

		It("should allow a non-Pod resource with no message", func() {
			admissionReview := createPodAdmissionReview(newReplicaSetPod(nil), admissionv1.Delete)
			admissionReview.Request.Kind = metav1.GroupVersionKind{
				Group:   "",
				Version: "v1",
				Kind:    "Service",
			}

			response := sendWebhookRequest(ginEngine, admissionReview)

			Expect(response.Response.Allowed).To(BeTrue())
			Expect(response.Response.Result).To(BeNil())
		})

		It("should fail open when the pod payload does not decode", func() {
			admissionReview := createPodAdmissionReview(newReplicaSetPod(nil), admissionv1.Delete)
			admissionReview.Request.OldObject.Raw = []byte(`{"spec": "not-an-object"}`)

			response := sendWebhookRequest(ginEngine, admissionReview)

			Expect(response.Response.Allowed).To(BeTrue())
			Expect(response.Response.Result.Message).To(Equal(
				"Error occurred during validation, allowing deletion"))
		})
	})
})
