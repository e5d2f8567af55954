package request

import (
	"net/http"

	"github.com/go-resty/resty/v2"
)

// Request is the shared HTTP client for quote, news and broker calls.
// Yahoo endpoints reject requests without a browser-like User-Agent.
var Request = resty.New().
	SetTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment, // 通用适配环境变量
	}).
	SetHeader("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36").
	SetRetryCount(3)
