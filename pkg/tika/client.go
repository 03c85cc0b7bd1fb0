// Package tika 提供了一个与 Apache Tika 服务器交互的客户端。
package tika

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"
	"pdfchat-go/internal/config"
	"pdfchat-go/internal/pipeline"
)

// ErrUnprocessable 表示 Tika 无法解析该文档（损坏、加密或格式不支持）。
// 它包装了 pipeline.ErrUndecodable；连接失败与 5xx 不使用它。
var ErrUnprocessable = fmt.Errorf("tika: %w", pipeline.ErrUndecodable)

// Client 是 Tika 服务器的客户端。
type Client struct {
	serverURL string
	client    *http.Client
}

// NewClient 创建一个新的 Tika 客户端实例。
func NewClient(cfg config.TikaConfig) *Client {
	return &Client{
		serverURL: strings.TrimRight(cfg.ServerURL, "/"),
		client:    &http.Client{Timeout: cfg.Timeout},
	}
}

// Pages 调用 Tika 的 XHTML 输出，并按 <div class="page"> 拆分为逐页文本。
// 若输出中没有分页标记（非 PDF 或旧版本 Tika），整篇文本作为一页返回。
func (c *Client) Pages(ctx context.Context, data []byte, fileName string) ([]string, error) {
	body, err := c.put(ctx, bytes.NewReader(data), fileName, "text/html")
	if err != nil {
		return nil, err
	}
	pages, err := splitXHTMLPages(body)
	if err != nil {
		return nil, fmt.Errorf("解析 Tika XHTML 输出失败: %w", err)
	}
	return pages, nil
}

// put 根据文件后缀推断 MIME 类型，把文档 PUT 到 Tika 的 /tika 端点。
func (c *Client) put(ctx context.Context, fileReader io.Reader, fileName, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.serverURL+"/tika", fileReader)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("Content-Type", detectMimeType(fileName))

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("调用 Tika 失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnprocessableEntity || resp.StatusCode == http.StatusUnsupportedMediaType {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: [%d] %s", ErrUnprocessable, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("Tika 返回错误 [%d]: %s", resp.StatusCode, string(body))
	}

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, resp.Body); err != nil {
		return nil, fmt.Errorf("读取 Tika 响应失败: %w", err)
	}
	return buf.Bytes(), nil
}

// splitXHTMLPages 遍历 XHTML 节点树，收集每个 class="page" 的 div 中的文本。
func splitXHTMLPages(doc []byte) ([]string, error) {
	root, err := html.Parse(bytes.NewReader(doc))
	if err != nil {
		return nil, err
	}

	var pages []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "div" && hasClass(n, "page") {
			var sb strings.Builder
			collectText(n, &sb)
			pages = append(pages, sb.String())
			return
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(root)

	if len(pages) == 0 {
		var sb strings.Builder
		if body := findElement(root, "body"); body != nil {
			collectText(body, &sb)
		} else {
			collectText(root, &sb)
		}
		pages = []string{sb.String()}
	}
	return pages, nil
}

// collectText 拼接节点下所有文本，块级元素之间补换行以保留段落边界。
func collectText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
		return
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		collectText(child, sb)
	}
	if n.Type == html.ElementNode {
		switch n.Data {
		case "p", "div", "br", "li", "h1", "h2", "h3", "h4", "h5", "h6", "tr":
			sb.WriteString("\n")
		}
	}
}

func hasClass(n *html.Node, class string) bool {
	for _, attr := range n.Attr {
		if attr.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(attr.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if found := findElement(child, tag); found != nil {
			return found
		}
	}
	return nil
}

// detectMimeType 根据文件扩展名判断 Content-Type
func detectMimeType(fileName string) string {
	ext := filepath.Ext(fileName)
	if ext == "" {
		return "application/octet-stream"
	}
	mimeType := mime.TypeByExtension(ext)
	if mimeType == "" {
		return "application/octet-stream"
	}
	return mimeType
}
