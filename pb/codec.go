package pb

import (
	"fmt"

	"google.golang.org/grpc/encoding"
	protocodec "google.golang.org/grpc/encoding/proto"
)

// codec 以 "proto" 名称注册，替换 gRPC 默认编解码器
// 本包消息走 protowire 手写编码，其他消息（如 health）交给原生 proto 编解码器
type codec struct {
	fallback encoding.Codec
}

func init() {
	encoding.RegisterCodec(codec{fallback: encoding.GetCodec(protocodec.Name)})
}

func (c codec) Marshal(v interface{}) ([]byte, error) {
	if m, ok := v.(Message); ok {
		return m.Marshal()
	}
	if c.fallback == nil {
		return nil, fmt.Errorf("pb: cannot marshal %T", v)
	}
	return c.fallback.Marshal(v)
}

func (c codec) Unmarshal(data []byte, v interface{}) error {
	if m, ok := v.(Message); ok {
		return m.Unmarshal(data)
	}
	if c.fallback == nil {
		return fmt.Errorf("pb: cannot unmarshal into %T", v)
	}
	return c.fallback.Unmarshal(data, v)
}

func (codec) Name() string {
	return protocodec.Name
}
