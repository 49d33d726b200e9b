package broadcast

// Broadcaster 房间事件推送能力
// 作为显式参数传入各组件，核心逻辑不感知具体传输层
type Broadcaster interface {
	// ToRoom 向房间内全部连接推送事件
	ToRoom(roomID uint, event string, payload interface{})
	// ToUser 向指定用户的连接推送事件
	ToUser(userID uint, event string, payload interface{})
}

// Noop 空实现，供测试与未挂传输层的场景使用
type Noop struct{}

func (Noop) ToRoom(roomID uint, event string, payload interface{}) {}
func (Noop) ToUser(userID uint, event string, payload interface{}) {}
