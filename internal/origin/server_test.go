package origin_test

import (
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/spreadshirt/s3gw-haproxy/internal/origin"
	srverrors "github.com/spreadshirt/s3gw-haproxy/pkg/errors"
)

func do(method, url string) (int, string) {
	req, err := http.NewRequest(method, url, strings.NewReader("payload"))
	Expect(err).ToNot(HaveOccurred())
	resp, err := http.DefaultClient.Do(req)
	Expect(err).ToNot(HaveOccurred())
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	Expect(err).ToNot(HaveOccurred())
	return resp.StatusCode, string(body)
}

var _ = Describe("Origin server", func() {
	var (
		srv     *origin.Server
		baseURL string
	)

	BeforeEach(func() {
		var err error
		srv, err = origin.Listen("127.0.0.1:0", origin.DefaultResponseTable())
		Expect(err).ToNot(HaveOccurred())
		baseURL = "http://" + srv.Addr()
	})

	AfterEach(func() {
		_ = srv.Stop()
	})

	Context("dispatch", func() {
		// Given an origin with the default table
		// When requesting an unregistered path
		// Then it should answer 404 with an empty body and count the request
		It("should answer unknown paths with an empty 404", func() {
			// Act
			status, body := do(http.MethodGet, baseURL+"/missing")

			// Assert
			Expect(status).To(Equal(http.StatusNotFound))
			Expect(body).To(BeEmpty())
			Expect(srv.Requests()).To(Equal(uint64(1)))
		})

		DescribeTable("should serve registered paths for every method",
			func(method string, wantBody string) {
				status, body := do(method, baseURL+"/test-bucket/foo-key")
				Expect(status).To(Equal(http.StatusOK))
				Expect(body).To(Equal(wantBody))
				Expect(srv.Requests()).To(Equal(uint64(1)))
			},
			Entry("GET", http.MethodGet, "blabla"),
			Entry("HEAD", http.MethodHead, ""),
			Entry("POST", http.MethodPost, "blabla"),
			Entry("PUT", http.MethodPut, "blabla"),
			Entry("DELETE", http.MethodDelete, "blabla"),
		)

		It("should serve the configured status and body", func() {
			status, body := do(http.MethodGet, baseURL+"/test-bucket/notfoundkey")
			Expect(status).To(Equal(http.StatusNotFound))
			Expect(body).To(Equal("404"))
		})

		It("should count requests with unsupported methods", func() {
			status, body := do(http.MethodPatch, baseURL+"/test-bucket/foo-key")
			Expect(status).To(Equal(http.StatusNotFound))
			Expect(body).To(BeEmpty())
			Expect(srv.Requests()).To(Equal(uint64(1)))
		})
	})

	Context("counter", func() {
		// Given many concurrent clients
		// When each sends one request
		// Then no increment should be lost
		It("should count concurrent requests exactly once each", func() {
			var wg sync.WaitGroup
			for i := range 50 {
				wg.Add(1)
				go func(i int) {
					defer GinkgoRecover()
					defer wg.Done()
					path := "/test-bucket/foo-key"
					if i%2 == 0 {
						path = "/nowhere"
					}
					do(http.MethodPost, baseURL+path)
				}(i)
			}
			wg.Wait()

			Expect(srv.Requests()).To(Equal(uint64(50)))
		})

		It("should keep counts per server instance", func() {
			other, err := origin.Listen("127.0.0.1:0", origin.DefaultResponseTable())
			Expect(err).ToNot(HaveOccurred())
			defer other.Stop()

			do(http.MethodGet, baseURL+"/missing")
			do(http.MethodGet, baseURL+"/missing")
			do(http.MethodGet, "http://"+other.Addr()+"/missing")

			Expect(srv.Requests()).To(Equal(uint64(2)))
			Expect(other.Requests()).To(Equal(uint64(1)))
		})
	})

	Context("lifecycle", func() {
		It("should fail to bind an address in use", func() {
			_, err := origin.Listen(srv.Addr(), origin.DefaultResponseTable())
			Expect(err).To(HaveOccurred())
		})

		It("should stop within the bound and refuse further connections", func() {
			Expect(srv.Stop()).To(Succeed())

			_, err := net.Dial("tcp", srv.Addr())
			Expect(err).To(HaveOccurred())
		})

		// Given a client that sent its headers but keeps the body open
		// When the server is stopped
		// Then stopping gives up after the bound and reports a teardown warning
		It("should warn when a request is still in flight after the bound", func() {
			// Arrange
			conn, err := net.Dial("tcp", srv.Addr())
			Expect(err).ToNot(HaveOccurred())
			defer conn.Close()

			_, err = conn.Write([]byte("POST /test-bucket/foo-key HTTP/1.1\r\nHost: origin\r\nContent-Length: 100\r\n\r\nabc"))
			Expect(err).ToNot(HaveOccurred())
			Eventually(srv.Requests).Should(Equal(uint64(1)))

			// Act
			started := time.Now()
			err = srv.Stop()

			// Assert
			Expect(err).To(HaveOccurred())
			Expect(srverrors.IsTeardownWarning(err)).To(BeTrue())
			Expect(time.Since(started)).To(BeNumerically(">=", origin.StopTimeout))
		})
	})
})

var _ = Describe("LoadResponseTable", func() {
	It("should load a YAML fixture", func() {
		path := filepath.Join(GinkgoT().TempDir(), "responses.yaml")
		Expect(os.WriteFile(path, []byte(`
/a/b:
  status: 201
  body: created
/a/c:
  status: 404
`), 0o644)).To(Succeed())

		table, err := origin.LoadResponseTable(path)

		Expect(err).ToNot(HaveOccurred())
		Expect(table).To(HaveLen(2))
		Expect(table["/a/b"]).To(Equal(origin.Response{Status: 201, Body: "created"}))
		Expect(table["/a/c"].Body).To(BeEmpty())
	})

	It("should reject invalid status codes", func() {
		path := filepath.Join(GinkgoT().TempDir(), "responses.yaml")
		Expect(os.WriteFile(path, []byte("/a:\n  status: 42\n"), 0o644)).To(Succeed())

		_, err := origin.LoadResponseTable(path)
		Expect(err).To(MatchError(ContainSubstring("invalid status")))
	})

	It("should fail on a missing file", func() {
		_, err := origin.LoadResponseTable("/does/not/exist.yaml")
		Expect(err).To(HaveOccurred())
	})
})
