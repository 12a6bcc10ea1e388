// Package pb 定义 GridDFS 的线上消息与 gRPC 服务绑定，与 proto/griddfs.proto 保持一致。
package pb

import (
	"google.golang.org/protobuf/encoding/protowire"
)

// Message 本包所有线上消息都实现该接口
type Message interface {
	Marshal() ([]byte, error)
	Unmarshal(data []byte) error
}

// DataNodeInfo 节点身份信息
type DataNodeInfo struct {
	Id        string
	Address   string
	Capacity  int64
	FreeSpace int64
}

func (m *DataNodeInfo) GetId() string {
	if m != nil {
		return m.Id
	}
	return ""
}

func (m *DataNodeInfo) GetAddress() string {
	if m != nil {
		return m.Address
	}
	return ""
}

func (m *DataNodeInfo) GetCapacity() int64 {
	if m != nil {
		return m.Capacity
	}
	return 0
}

func (m *DataNodeInfo) GetFreeSpace() int64 {
	if m != nil {
		return m.FreeSpace
	}
	return 0
}

func (m *DataNodeInfo) Marshal() ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	var b []byte
	b = appendString(b, 1, m.Id)
	b = appendString(b, 2, m.Address)
	b = appendInt64(b, 3, m.Capacity)
	b = appendInt64(b, 4, m.FreeSpace)
	return b, nil
}

func (m *DataNodeInfo) Unmarshal(data []byte) error {
	*m = DataNodeInfo{}
	return decodeFields(data, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			m.Id = v
			return n
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			m.Address = v
			return n
		case num == 3 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			m.Capacity = int64(v)
			return n
		case num == 4 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			m.FreeSpace = int64(v)
			return n
		}
		return protowire.ConsumeFieldValue(num, typ, b)
	})
}

type RegisterDataNodeRequest struct {
	Datanode *DataNodeInfo
}

func (m *RegisterDataNodeRequest) GetDatanode() *DataNodeInfo {
	if m != nil {
		return m.Datanode
	}
	return nil
}

func (m *RegisterDataNodeRequest) Marshal() ([]byte, error) {
	if m == nil || m.Datanode == nil {
		return nil, nil
	}
	inner, err := m.Datanode.Marshal()
	if err != nil {
		return nil, err
	}
	b := protowire.AppendTag(nil, 1, protowire.BytesType)
	return protowire.AppendBytes(b, inner), nil
}

func (m *RegisterDataNodeRequest) Unmarshal(data []byte) error {
	*m = RegisterDataNodeRequest{}
	var nested error
	err := decodeFields(data, func(num protowire.Number, typ protowire.Type, b []byte) int {
		if num == 1 && typ == protowire.BytesType {
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n
			}
			m.Datanode = &DataNodeInfo{}
			nested = m.Datanode.Unmarshal(v)
			return n
		}
		return protowire.ConsumeFieldValue(num, typ, b)
	})
	if err != nil {
		return err
	}
	return nested
}

type RegisterDataNodeResponse struct {
	Success bool
	Message string
}

func (m *RegisterDataNodeResponse) GetSuccess() bool {
	return m != nil && m.Success
}

func (m *RegisterDataNodeResponse) GetMessage() string {
	if m != nil {
		return m.Message
	}
	return ""
}

func (m *RegisterDataNodeResponse) Marshal() ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	var b []byte
	b = appendBool(b, 1, m.Success)
	b = appendString(b, 2, m.Message)
	return b, nil
}

func (m *RegisterDataNodeResponse) Unmarshal(data []byte) error {
	*m = RegisterDataNodeResponse{}
	return decodeFields(data, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			m.Success = protowire.DecodeBool(v)
			return n
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			m.Message = v
			return n
		}
		return protowire.ConsumeFieldValue(num, typ, b)
	})
}

type HeartbeatRequest struct {
	DatanodeId string
	FreeSpace  int64
}

func (m *HeartbeatRequest) GetDatanodeId() string {
	if m != nil {
		return m.DatanodeId
	}
	return ""
}

func (m *HeartbeatRequest) GetFreeSpace() int64 {
	if m != nil {
		return m.FreeSpace
	}
	return 0
}

func (m *HeartbeatRequest) Marshal() ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	var b []byte
	b = appendString(b, 1, m.DatanodeId)
	b = appendInt64(b, 2, m.FreeSpace)
	return b, nil
}

func (m *HeartbeatRequest) Unmarshal(data []byte) error {
	*m = HeartbeatRequest{}
	return decodeFields(data, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			m.DatanodeId = v
			return n
		case num == 2 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			m.FreeSpace = int64(v)
			return n
		}
		return protowire.ConsumeFieldValue(num, typ, b)
	})
}

type HeartbeatResponse struct {
	Success bool
}

func (m *HeartbeatResponse) GetSuccess() bool {
	return m != nil && m.Success
}

func (m *HeartbeatResponse) Marshal() ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return appendBool(nil, 1, m.Success), nil
}

func (m *HeartbeatResponse) Unmarshal(data []byte) error {
	*m = HeartbeatResponse{}
	return decodeFields(data, func(num protowire.Number, typ protowire.Type, b []byte) int {
		if num == 1 && typ == protowire.VarintType {
			v, n := protowire.ConsumeVarint(b)
			m.Success = protowire.DecodeBool(v)
			return n
		}
		return protowire.ConsumeFieldValue(num, typ, b)
	})
}

// WriteBlockRequest 上传流中的一个分片，block_id 只需出现在首个分片中
type WriteBlockRequest struct {
	BlockId string
	Data    []byte
}

func (m *WriteBlockRequest) GetBlockId() string {
	if m != nil {
		return m.BlockId
	}
	return ""
}

func (m *WriteBlockRequest) GetData() []byte {
	if m != nil {
		return m.Data
	}
	return nil
}

func (m *WriteBlockRequest) Marshal() ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	b := make([]byte, 0, len(m.BlockId)+len(m.Data)+16)
	b = appendString(b, 1, m.BlockId)
	b = appendBytes(b, 2, m.Data)
	return b, nil
}

func (m *WriteBlockRequest) Unmarshal(data []byte) error {
	*m = WriteBlockRequest{}
	return decodeFields(data, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			m.BlockId = v
			return n
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			m.Data = append([]byte(nil), v...)
			return n
		}
		return protowire.ConsumeFieldValue(num, typ, b)
	})
}

type WriteBlockResponse struct {
	Success bool
}

func (m *WriteBlockResponse) GetSuccess() bool {
	return m != nil && m.Success
}

func (m *WriteBlockResponse) Marshal() ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return appendBool(nil, 1, m.Success), nil
}

func (m *WriteBlockResponse) Unmarshal(data []byte) error {
	*m = WriteBlockResponse{}
	return decodeFields(data, func(num protowire.Number, typ protowire.Type, b []byte) int {
		if num == 1 && typ == protowire.VarintType {
			v, n := protowire.ConsumeVarint(b)
			m.Success = protowire.DecodeBool(v)
			return n
		}
		return protowire.ConsumeFieldValue(num, typ, b)
	})
}

type ReadBlockRequest struct {
	BlockId string
}

func (m *ReadBlockRequest) GetBlockId() string {
	if m != nil {
		return m.BlockId
	}
	return ""
}

func (m *ReadBlockRequest) Marshal() ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return appendString(nil, 1, m.BlockId), nil
}

func (m *ReadBlockRequest) Unmarshal(data []byte) error {
	*m = ReadBlockRequest{}
	return decodeFields(data, func(num protowire.Number, typ protowire.Type, b []byte) int {
		if num == 1 && typ == protowire.BytesType {
			v, n := protowire.ConsumeString(b)
			m.BlockId = v
			return n
		}
		return protowire.ConsumeFieldValue(num, typ, b)
	})
}

type ReadBlockResponse struct {
	Data []byte
}

func (m *ReadBlockResponse) GetData() []byte {
	if m != nil {
		return m.Data
	}
	return nil
}

func (m *ReadBlockResponse) Marshal() ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	b := make([]byte, 0, len(m.Data)+8)
	return appendBytes(b, 1, m.Data), nil
}

func (m *ReadBlockResponse) Unmarshal(data []byte) error {
	*m = ReadBlockResponse{}
	return decodeFields(data, func(num protowire.Number, typ protowire.Type, b []byte) int {
		if num == 1 && typ == protowire.BytesType {
			v, n := protowire.ConsumeBytes(b)
			m.Data = append([]byte(nil), v...)
			return n
		}
		return protowire.ConsumeFieldValue(num, typ, b)
	})
}

type DeleteBlockRequest struct {
	BlockId string
}

func (m *DeleteBlockRequest) GetBlockId() string {
	if m != nil {
		return m.BlockId
	}
	return ""
}

func (m *DeleteBlockRequest) Marshal() ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return appendString(nil, 1, m.BlockId), nil
}

func (m *DeleteBlockRequest) Unmarshal(data []byte) error {
	*m = DeleteBlockRequest{}
	return decodeFields(data, func(num protowire.Number, typ protowire.Type, b []byte) int {
		if num == 1 && typ == protowire.BytesType {
			v, n := protowire.ConsumeString(b)
			m.BlockId = v
			return n
		}
		return protowire.ConsumeFieldValue(num, typ, b)
	})
}

type DeleteBlockResponse struct {
	Success bool
}

func (m *DeleteBlockResponse) GetSuccess() bool {
	return m != nil && m.Success
}

func (m *DeleteBlockResponse) Marshal() ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return appendBool(nil, 1, m.Success), nil
}

func (m *DeleteBlockResponse) Unmarshal(data []byte) error {
	*m = DeleteBlockResponse{}
	return decodeFields(data, func(num protowire.Number, typ protowire.Type, b []byte) int {
		if num == 1 && typ == protowire.VarintType {
			v, n := protowire.ConsumeVarint(b)
			m.Success = protowire.DecodeBool(v)
			return n
		}
		return protowire.ConsumeFieldValue(num, typ, b)
	})
}

// proto3 不编码零值字段

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendInt64(b []byte, num protowire.Number, v int64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(v))
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeBool(v))
}

// decodeFields 依次遍历 data 中的字段
// consume 返回读取的字节数，负数为 protowire 错误码
func decodeFields(data []byte, consume func(num protowire.Number, typ protowire.Type, b []byte) int) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		m := consume(num, typ, data)
		if m < 0 {
			return protowire.ParseError(m)
		}
		data = data[m:]
	}
	return nil
}
