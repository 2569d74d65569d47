// Package eventbus 实现进程内事件总线
//
// 事件是 types.Event 联合类型的成员。订阅者按事件的具体类型订阅，
// 发布者调用 Emit。订阅分两种投递语义：
//
//   - 默认（有损）：缓冲区满时丢弃并计数，发布方永不阻塞
//   - Lossless：缓冲区满时发布方阻塞，直到投递或订阅关闭
//
// 发现引擎以 Lossless 订阅连接事件，保证不丢 ConnectionEstablished。
package eventbus
