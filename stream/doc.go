// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 stream 将三种上游协议的流式输出翻译为统一的客户端事件序列。

# 核心类型

  - Event：message、data、metadata、loading、done、error 六种事件
  - Translator：按行翻译一种上游协议（Uyun、Dify、AgentFlow）
  - Emitter：翻译器唯一的输出口，维护 AWAITING_INTENT → STREAMING_CONTENT → TERMINAL
  - Buffers：回答与思考过程的累积缓冲，供会话落库使用
  - Revealer：按字符或 token 逐步揭示 loading 文本

# 生命周期

Run 在独立 goroutine 中打开上游、逐行翻译并写入通道。每个流恰好以一个
done 或 error 事件结束；上游连接在正常结束、出错或 ctx 取消时都只释放一次。
ctx 取消后不再发送任何事件。
*/
package stream
