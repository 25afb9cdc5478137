// 版权所有 2026 FineTuneLab Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 moderation 提供统一的内容审核抽象，将文本分类到固定的 12 类目
违规体系并给出逐类置信度评分。

# 概述

本包屏蔽不同审核后端在协议与分类体系上的差异。内置三个提供者：

  - openai：调用外部 /moderations 分类服务（HTTP，带限速与超时）。
  - llm：用聊天补全模型充当分类器，解析其 JSON 输出。
  - pattern：进程内确定性正则/关键词匹配，零依赖降级路径。

解析器按配置选择提供者；auto 模式在外部服务可用时优先外部，
否则回退 pattern，每次调用独立决策、不跨调用缓存。

# 失败语义

提供者调用失败永不向上层传播。超时/取消按 timeout_policy 处理
（fail_open 视为未标记并告警，fail_closed 视为拦截）；其余错误按
on_provider_error 处理（fallback 重跑 pattern，soft 返回带降级标记
的未标记结果，由编排层转成低置信度 policy_violation）。

# 判定

ShouldBlock 在结果被标记且（任一标记类目位于 block_categories，或
任一评分 >= score_threshold）时返回 true。逐类严重级别由评分阈值
派生：>=0.9 critical，>=0.7 high，否则 medium。
*/
package moderation
