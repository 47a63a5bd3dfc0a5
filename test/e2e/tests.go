package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os/exec"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/spreadshirt/s3gw-haproxy/internal/config"
	"github.com/spreadshirt/s3gw-haproxy/internal/queue"
	"github.com/spreadshirt/s3gw-haproxy/internal/scenario"
	srverrors "github.com/spreadshirt/s3gw-haproxy/pkg/errors"
)

func requireBinaries() {
	if _, err := exec.LookPath(cfg.ProxyBinary); err != nil {
		Skip("proxy binary not available: " + err.Error())
	}
	if _, err := exec.LookPath(cfg.StoreBinary); err != nil {
		Skip("store binary not available: " + err.Error())
	}
}

var _ = Describe("Store restart scenario", func() {
	BeforeEach(func() {
		requireBinaries()
	})

	It("should enqueue 32 writes, lose the store, and enqueue 4 writes after the restart", func() {
		// Given the default scenario against the real binaries
		c := config.NewConfigurationWithOptionsAndDefaults()
		c.Proxy.Binary = cfg.ProxyBinary
		c.Store.Binary = cfg.StoreBinary
		c.Scenario.ReadyTimeout = cfg.ReadyTimeout
		c.Scenario.ReconnectInterval = cfg.ReconnectInterval
		Expect(c.Validate()).To(Succeed())

		// When the scenario runs
		report, err := scenario.NewRunner(c).Run(context.Background())

		// Then both queue lengths match
		Expect(err).NotTo(HaveOccurred())
		Expect(report.Checks).To(HaveLen(2))
		Expect(report.Checks[0].Observed).To(Equal(int64(32)))
		Expect(report.Checks[1].Observed).To(Equal(int64(4)))
		Expect(report.Passed()).To(BeTrue())
	})

	It("should fail setup when the proxy binary is missing", func() {
		c := config.NewConfigurationWithOptionsAndDefaults()
		c.Proxy.Binary = "./does-not-exist/haproxy"
		c.Store.Binary = cfg.StoreBinary

		_, err := scenario.NewRunner(c).Run(context.Background())

		Expect(srverrors.IsSetupError(err)).To(BeTrue())
		Expect(srverrors.IsLaunchError(err)).To(BeTrue())
	})
})

var _ = Describe("Proxy", Ordered, func() {
	var (
		stack  *Stack
		client *http.Client
	)

	BeforeAll(func() {
		requireBinaries()

		var err error
		stack, err = NewStack()
		Expect(err).NotTo(HaveOccurred())
		client = &http.Client{Timeout: 5 * time.Second}
	})

	AfterAll(func() {
		if stack != nil {
			Expect(stack.Close()).To(Succeed())
		}
	})

	get := func(path string) (int, string) {
		resp, err := client.Get(stack.URL(path))
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		return resp.StatusCode, string(body)
	}

	queueLength := func() int64 {
		n, err := stack.Observer.Length(context.Background(), queue.Key("bucket", "test-bucket"))
		Expect(err).NotTo(HaveOccurred())
		return n
	}

	It("should serve origin objects through the proxy", func() {
		status, body := get("/test-bucket/foo-key")
		Expect(status).To(Equal(http.StatusOK))
		Expect(body).To(Equal("blabla"))
	})

	It("should answer unknown paths with an empty 404 and count them", func() {
		before := stack.Origin.Requests()

		status, body := get("/missing")

		Expect(status).To(Equal(http.StatusNotFound))
		Expect(body).To(BeEmpty())
		Expect(stack.Origin.Requests()).To(Equal(before + 1))
	})

	It("should enqueue an event per write", func() {
		before := queueLength()

		resp, err := client.Post(stack.URL("/test-bucket/bar-key"), "application/octet-stream", strings.NewReader("foo"))
		Expect(err).NotTo(HaveOccurred())
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		Eventually(queueLength).WithTimeout(2 * time.Second).Should(Equal(before + 1))

		events, err := stack.Observer.Events(context.Background(), queue.Key("bucket", "test-bucket"))
		Expect(err).NotTo(HaveOccurred())
		Expect(events).NotTo(BeEmpty())
		Expect(events[len(events)-1].ObjectKey).To(ContainSubstring("bar-key"))
	})

	It("should enqueue again after the store restarted on the same port", func() {
		Expect(stack.StopStore()).To(Succeed())
		Expect(stack.StartStore()).To(Succeed())
		time.Sleep(cfg.ReconnectInterval)

		Expect(queueLength()).To(BeZero())

		resp, err := client.Post(stack.URL("/test-bucket/foo-key"), "application/octet-stream", strings.NewReader("foo"))
		Expect(err).NotTo(HaveOccurred())
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		Eventually(queueLength).WithTimeout(2 * time.Second).Should(Equal(int64(1)))
	})
})

var _ = Describe("Readiness polling", func() {
	It("should retry until the check passes", func() {
		attempts := 0
		err := poll(5*time.Second, func() error {
			attempts++
			if attempts < 3 {
				return errors.New("connection refused")
			}
			return nil
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(attempts).To(Equal(3))
	})

	It("should give up after the limit with the last error", func() {
		started := time.Now()
		err := poll(300*time.Millisecond, func() error {
			return errors.New("connection refused")
		})

		Expect(err).To(MatchError("connection refused"))
		Expect(time.Since(started)).To(BeNumerically("<", 3*time.Second))
	})
})
