package http

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/elazarl/goproxy"
	"github.com/stretchr/testify/require"

	"github.com/pktwire/pktwire/transport"
)

func TestDialFetchesAdvertisementThroughHTTPProxy(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("001e# service=git-upload-pack\n0000"))
	}))
	defer origin.Close()

	proxy := goproxy.NewProxyHttpServer()
	proxySrv := httptest.NewServer(proxy)
	defer proxySrv.Close()

	proxyURL, err := url.Parse(proxySrv.URL)
	require.NoError(t, err)

	client := &http.Client{
		Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
	}

	d := &Dialer{Client: client}

	s, err := d.Dial(context.Background(), &transport.Endpoint{}, transport.UploadPackService, nil)
	require.NoError(t, err)
	s.(*stream).baseURL = origin.URL

	data, err := io.ReadAll(s)
	require.NoError(t, err)
	require.Contains(t, string(data), "service=git-upload-pack")
}
